package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedwise/analysis-back/internal/domain"
)

// PostgresUserConfigRepository resolves per-user provider overrides. Missing
// rows are not an error: the user simply runs on environment defaults.
type PostgresUserConfigRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserConfigRepository(pool *pgxpool.Pool) *PostgresUserConfigRepository {
	return &PostgresUserConfigRepository{pool: pool}
}

func (r *PostgresUserConfigRepository) GetProviderConfig(
	ctx context.Context,
	userID string,
) (*domain.UserProviderConfig, error) {
	var config domain.UserProviderConfig
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, provider, model, api_key, base_url
		FROM user_provider_configs
		WHERE user_id = $1
	`, userID).Scan(
		&config.UserID,
		&config.Provider,
		&config.Model,
		&config.APIKey,
		&config.BaseURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user provider config: %w", err)
	}
	return &config, nil
}
