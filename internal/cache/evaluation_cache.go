package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/feedwise/analysis-back/internal/domain"
)

type entry struct {
	Evaluation domain.PreliminaryEvaluation
	Model      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// EvaluationCache holds recent preliminary evaluations keyed by a content
// signature, so re-enqueued articles skip the cheap-model call while the
// content is unchanged.
type EvaluationCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
}

func NewEvaluationCache(config Config) *EvaluationCache {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 2000
	}
	return &EvaluationCache{
		entries:    make(map[string]entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

func (c *EvaluationCache) Get(signature string) (domain.PreliminaryEvaluation, bool) {
	c.mu.RLock()
	cached, exists := c.entries[signature]
	c.mu.RUnlock()

	if !exists {
		return domain.PreliminaryEvaluation{}, false
	}
	if time.Now().UTC().After(cached.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, signature)
		c.mu.Unlock()
		return domain.PreliminaryEvaluation{}, false
	}
	return cached.Evaluation, true
}

func (c *EvaluationCache) Set(signature string, evaluation domain.PreliminaryEvaluation, model string) {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[signature] = entry{
		Evaluation: evaluation,
		Model:      model,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.ttl),
	}
}

// BuildSignature derives a stable key from the evaluated inputs. The model
// name is part of the key so a routing change never serves stale judgments.
func (c *EvaluationCache) BuildSignature(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.TrimSpace(strings.ToLower(part)))
	}
	joined := strings.Join(normalized, "||")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func (c *EvaluationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *EvaluationCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value entry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.CreatedAt.Before(pairs[j].value.CreatedAt)
	})
	delete(c.entries, pairs[0].key)
}
