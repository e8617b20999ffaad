package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Sink delivers a single event to the outside world.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// RedisSink publishes events as JSON on a pub/sub channel consumed by the
// realtime notification gateway.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink builds a sink for the given channel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = "invigil.events"
	}
	return &RedisSink{client: client, channel: channel}
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
