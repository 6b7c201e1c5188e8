package repository

import (
	"context"
	"sync"

	"github.com/feedwise/analysis-back/internal/domain"
)

// UserConfigRepository resolves the per-user provider override. A nil result
// with a nil error means the user runs on environment defaults.
type UserConfigRepository interface {
	GetProviderConfig(ctx context.Context, userID string) (*domain.UserProviderConfig, error)
}

// MemoryUserConfigRepository backs tests and local runs without a database.
type MemoryUserConfigRepository struct {
	mu      sync.Mutex
	configs map[string]*domain.UserProviderConfig
}

func NewMemoryUserConfigRepository() *MemoryUserConfigRepository {
	return &MemoryUserConfigRepository{configs: make(map[string]*domain.UserProviderConfig)}
}

func (r *MemoryUserConfigRepository) Put(config domain.UserProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := config
	r.configs[config.UserID] = &stored
}

func (r *MemoryUserConfigRepository) GetProviderConfig(
	_ context.Context,
	userID string,
) (*domain.UserProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	config, ok := r.configs[userID]
	if !ok {
		return nil, nil
	}
	clone := *config
	return &clone, nil
}
