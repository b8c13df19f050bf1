package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
)

// EventHandler processes one audit event. A returned error leaves the entry
// pending so it is redelivered to this consumer on restart.
type EventHandler func(ctx context.Context, ev lock.AuditEvent) error

type EventConsumer struct {
	client       *redis.Client
	handler      EventHandler
	consumerName string
	logger       logrus.FieldLogger
}

// NewEventConsumer constructs a Redis stream consumer.
func NewEventConsumer(client *redis.Client, handler EventHandler, consumerName string, logger logrus.FieldLogger) *EventConsumer {
	return &EventConsumer{
		client:       client,
		handler:      handler,
		consumerName: consumerName,
		logger:       logger.WithField("consumer", consumerName),
	}
}

// Run starts the consumer loop and blocks until context cancellation.
func (c *EventConsumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.WithField("stream", StreamName).Info("consumer started")

	// First drain pending messages, then switch to reading new ones.
	startID := "0"
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer shutting down")
			return nil
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: c.consumerName,
			Streams:  []string{StreamName, startID},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if startID == "0" {
					startID = ">"
				}
				continue
			}
			if ctx.Err() != nil {
				c.logger.Info("consumer shutting down")
				return nil
			}
			c.logger.WithError(err).Error("xreadgroup failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			if len(stream.Messages) == 0 && startID == "0" {
				startID = ">"
				continue
			}
			failed := false
			for _, msg := range stream.Messages {
				if !c.processMessage(ctx, msg) {
					failed = true
				}
			}
			// a failed pending entry would be read back at once; leave it
			// for the next restart and move on to new entries
			if failed && startID == "0" {
				startID = ">"
			}
		}
	}
}

// processMessage handles a single message and acks on success. Entries that
// cannot be decoded are acked and dropped. It reports false when the entry
// stays pending.
func (c *EventConsumer) processMessage(ctx context.Context, msg redis.XMessage) bool {
	logger := c.logger.WithField("message_id", msg.ID)

	ev, err := DecodeEvent(msg)
	if err != nil {
		logger.WithError(err).Warn("dropping malformed lock event")
		c.ack(ctx, msg.ID)
		return true
	}

	handleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := c.handler(handleCtx, ev); err != nil {
		logger.WithError(err).Error("lock event handler failed, message stays pending")
		return false
	}
	c.ack(ctx, msg.ID)
	return true
}

func (c *EventConsumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, StreamName, ConsumerGroup, id).Err(); err != nil {
		c.logger.WithError(err).WithField("message_id", id).Error("xack failed")
	}
}

// ensureGroup creates the stream and consumer group if missing.
func (c *EventConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, StreamName, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// LogEvent is an EventHandler that writes each event to logger.
func LogEvent(logger logrus.FieldLogger) EventHandler {
	return func(_ context.Context, ev lock.AuditEvent) error {
		entry := logger.WithFields(logrus.Fields{
			"event":       ev.Kind.String(),
			"lock_key":    strconv.QuoteToASCII(ev.Key),
			"token":       uint64(ev.Token),
			"instance_id": ev.InstanceID,
			"at":          ev.At,
		})
		if ev.Error != "" {
			entry = entry.WithField("cause", ev.Error)
		}
		entry.Info("lock event")
		return nil
	}
}
