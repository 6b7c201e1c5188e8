package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedwise/analysis-back/internal/domain"
)

// PostgresArticlesRepository reads articles and persists the enrichment
// write-back on the same row.
type PostgresArticlesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresArticlesRepository(pool *pgxpool.Pool) *PostgresArticlesRepository {
	return &PostgresArticlesRepository{pool: pool}
}

func (r *PostgresArticlesRepository) Get(ctx context.Context, articleID string) (*domain.Article, error) {
	var article domain.Article
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, author, url, content, published_at
		FROM articles
		WHERE id = $1
	`, articleID).Scan(
		&article.ID,
		&article.UserID,
		&article.Title,
		&article.Author,
		&article.URL,
		&article.Content,
		&article.Published,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", err)
	}
	return &article, nil
}

func (r *PostgresArticlesRepository) UpdateEnrichment(
	ctx context.Context,
	articleID string,
	enrichment domain.Enrichment,
) error {
	if enrichment.AnalyzedAt.IsZero() {
		enrichment.AnalyzedAt = time.Now().UTC()
	}

	mainPoints, err := json.Marshal(enrichment.MainPoints)
	if err != nil {
		return fmt.Errorf("marshal main points: %w", err)
	}
	keyQuotes, err := json.Marshal(enrichment.KeyQuotes)
	if err != nil {
		return fmt.Errorf("marshal key quotes: %w", err)
	}
	var scores []byte
	if enrichment.Scores != nil {
		scores, err = json.Marshal(enrichment.Scores)
		if err != nil {
			return fmt.Errorf("marshal score dimensions: %w", err)
		}
	}

	command, err := r.pool.Exec(ctx, `
		UPDATE articles
		SET language = COALESCE(NULLIF($2, ''), language),
			summary = COALESCE(NULLIF($3, ''), summary),
			keywords = CASE WHEN cardinality($4::text[]) > 0 THEN $4::text[] ELSE keywords END,
			category = COALESCE(NULLIF($5, ''), category),
			sentiment = COALESCE(NULLIF($6, ''), sentiment),
			importance_score = CASE WHEN $7::float8 > 0 THEN $7::float8 ELSE importance_score END,
			main_points = CASE WHEN $8::jsonb IS NOT NULL THEN $8::jsonb ELSE main_points END,
			key_quotes = CASE WHEN $9::jsonb IS NOT NULL THEN $9::jsonb ELSE key_quotes END,
			score_dimensions = COALESCE($10::jsonb, score_dimensions),
			analysis_model = COALESCE(NULLIF($11, ''), analysis_model),
			processing_ms = $12,
			analyzed_at = $13
		WHERE id = $1
	`,
		articleID,
		enrichment.Language,
		enrichment.Summary,
		enrichment.Keywords,
		enrichment.Category,
		enrichment.Sentiment,
		enrichment.ImportanceScore,
		nullableJSON(enrichment.MainPoints, mainPoints),
		nullableJSON(enrichment.KeyQuotes, keyQuotes),
		scores,
		enrichment.Model,
		enrichment.ProcessingMS,
		enrichment.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("update article enrichment: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableJSON[T any](values []T, encoded []byte) []byte {
	if len(values) == 0 {
		return nil
	}
	return encoded
}
