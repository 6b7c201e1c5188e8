package repository

import (
	"context"
	"sync"
	"time"

	"github.com/feedwise/analysis-back/internal/domain"
)

// ArticlesRepository reads article content for analysis and writes the
// enrichment back onto the article record.
type ArticlesRepository interface {
	Get(ctx context.Context, articleID string) (*domain.Article, error)
	UpdateEnrichment(ctx context.Context, articleID string, enrichment domain.Enrichment) error
}

// MemoryArticlesRepository backs tests and local runs without a database.
type MemoryArticlesRepository struct {
	mu          sync.Mutex
	articles    map[string]*domain.Article
	enrichments map[string]domain.Enrichment
}

func NewMemoryArticlesRepository() *MemoryArticlesRepository {
	return &MemoryArticlesRepository{
		articles:    make(map[string]*domain.Article),
		enrichments: make(map[string]domain.Enrichment),
	}
}

func (r *MemoryArticlesRepository) Put(article domain.Article) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := article
	r.articles[article.ID] = &stored
}

func (r *MemoryArticlesRepository) Get(_ context.Context, articleID string) (*domain.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	article, ok := r.articles[articleID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *article
	return &clone, nil
}

func (r *MemoryArticlesRepository) UpdateEnrichment(
	_ context.Context,
	articleID string,
	enrichment domain.Enrichment,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.articles[articleID]; !ok {
		return ErrNotFound
	}
	if enrichment.AnalyzedAt.IsZero() {
		enrichment.AnalyzedAt = time.Now().UTC()
	}
	r.enrichments[articleID] = enrichment
	return nil
}

// Enrichment exposes the stored write-back for assertions in tests.
func (r *MemoryArticlesRepository) Enrichment(articleID string) (domain.Enrichment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	enrichment, ok := r.enrichments[articleID]
	return enrichment, ok
}
