package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// CompletionEvent is published after a job reaches a terminal state so feed
// frontends can refresh without polling.
type CompletionEvent struct {
	JobID     string    `json:"job_id"`
	ArticleID string    `json:"article_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers completion events. Delivery is fire and forget: a lost
// event is acceptable, a blocked worker is not.
type Notifier interface {
	JobCompleted(ctx context.Context, event CompletionEvent)
}

// RedisNotifier publishes completion events on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *log.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, logger *log.Logger) *RedisNotifier {
	if channel == "" {
		channel = "analysis:jobs:completed"
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) JobCompleted(ctx context.Context, event CompletionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.logf("notify: marshal completion event: %v", err)
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logf("notify: publish completion event: %v", err)
	}
}

func (n *RedisNotifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

// NoopNotifier is used when Redis is not configured.
type NoopNotifier struct{}

func (NoopNotifier) JobCompleted(context.Context, CompletionEvent) {}
