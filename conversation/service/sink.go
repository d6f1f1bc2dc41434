package service

import (
	"context"
	"encoding/json"
	"errors"

	"llm-arena/backend/conversation/models"
	sharedredis "llm-arena/backend/shared/redis"
)

// Sink receives every event the orchestrator emits, keyed by session topic.
// Fan-out to connected clients is the sink's job.
type Sink interface {
	Publish(ctx context.Context, topic string, event models.StreamEvent) error
}

// Topic is the sink topic for a session
func Topic(sessionID string) string {
	return "session:" + sessionID
}

// MultiSink publishes to every sink and joins their errors
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, topic string, event models.StreamEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RedisChannelPrefix namespaces pub/sub channels carrying stream events
const RedisChannelPrefix = "arena:events:"

// RedisSink publishes events as JSON on a redis channel per topic so other
// instances and services can follow a session.
type RedisSink struct {
	client *sharedredis.RedisClient
}

func NewRedisSink(client *sharedredis.RedisClient) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Publish(ctx context.Context, topic string, event models.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, RedisChannelPrefix+topic, payload)
}

type discardSink struct{}

func (discardSink) Publish(context.Context, string, models.StreamEvent) error { return nil }
