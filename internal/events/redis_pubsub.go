package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes JSON-encoded events on a redis channel.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) error {
	if p.client == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}
	return p.client.Publish(ctx, stream, string(data)).Err()
}

// RedisSubscriber decodes events from a redis channel. A non-empty type set
// limits delivery to those event types.
type RedisSubscriber struct {
	client *redis.Client
	types  map[string]struct{}
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger, types ...string) *RedisSubscriber {
	s := &RedisSubscriber{client: client, log: log}
	if len(types) > 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	return s
}

func (s *RedisSubscriber) accepts(event Event) bool {
	if event.Type == "" {
		return false
	}
	if s.types == nil {
		return true
	}
	_, ok := s.types[event.Type]
	return ok
}

// Subscribe blocks until the subscription is confirmed, then delivers events
// to handler from a background goroutine until ctx is cancelled.
func (s *RedisSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	if s.client == nil {
		return fmt.Errorf("redis is not configured")
	}
	pubsub := s.client.Subscribe(ctx, stream)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}

	go s.consume(ctx, pubsub, handler)
	return nil
}

func (s *RedisSubscriber) consume(ctx context.Context, pubsub *redis.PubSub, handler func(Event)) {
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.log.Warn("redis subscription closed")
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.log.Error("failed to unmarshal event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if s.accepts(event) {
				handler(event)
			}
		}
	}
}
