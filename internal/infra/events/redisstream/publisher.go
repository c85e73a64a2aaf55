// Package redisstream appends layout events to a Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"binmap/internal/config"
	"binmap/pkg/domain"
)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "binmap:layout-events"

// Publisher writes one stream entry per event with the JSON encoded event
// under "data" and the routing fields alongside it.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// New wraps an existing client. maxLen <= 0 leaves the stream untrimmed.
func New(client *redis.Client, stream string, maxLen int64) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// Dial connects using cfg and verifies the server answers.
func Dial(ctx context.Context, cfg config.RedisConfig) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Stream, cfg.MaxLen), nil
}

// Stream returns the stream key.
func (p *Publisher) Stream() string { return p.stream }

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, event domain.LayoutEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: map[string]interface{}{
			"type":         string(event.Type),
			"blueprint_id": event.BlueprintID,
			"org_id":       event.OrgID,
			"data":         string(data),
		},
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Recent returns up to count events, newest first.
func (p *Publisher) Recent(ctx context.Context, count int64) ([]domain.LayoutEvent, error) {
	msgs, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", p.stream, err)
	}
	out := make([]domain.LayoutEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var e domain.LayoutEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Close releases the client.
func (p *Publisher) Close() error { return p.client.Close() }
