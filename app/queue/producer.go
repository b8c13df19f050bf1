package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
)

// EventProducer appends lock audit events to a Redis stream. It satisfies
// lock.EventSink.
type EventProducer struct {
	client *redis.Client
}

// NewEventProducer constructs a Redis stream producer.
func NewEventProducer(client *redis.Client) *EventProducer {
	return &EventProducer{client: client}
}

// Publish pushes an audit event onto the stream.
func (p *EventProducer) Publish(ctx context.Context, ev lock.AuditEvent) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		MaxLen: StreamMaxLen,
		Values: encodeEvent(ev),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd to %s: %w", StreamName, err)
	}
	return nil
}
