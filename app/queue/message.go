package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
)

const StreamName = "locks:events"
const ConsumerGroup = "lock-event-consumers"

// StreamMaxLen caps the audit stream; older entries are trimmed on publish.
const StreamMaxLen = 100000

func encodeEvent(ev lock.AuditEvent) map[string]interface{} {
	return map[string]interface{}{
		"kind":        ev.Kind.String(),
		"lock_key":    ev.Key,
		"token":       strconv.FormatUint(uint64(ev.Token), 10),
		"instance_id": ev.InstanceID,
		"at":          ev.At.UTC().Format(time.RFC3339Nano),
		"error":       ev.Error,
	}
}

// DecodeEvent rebuilds an audit event from a stream entry.
func DecodeEvent(msg redis.XMessage) (lock.AuditEvent, error) {
	kindValue, _ := msg.Values["kind"].(string)
	kind, ok := lock.ParseEventKind(kindValue)
	if !ok {
		return lock.AuditEvent{}, fmt.Errorf("message %s: unknown event kind %q", msg.ID, kindValue)
	}

	tokenValue, _ := msg.Values["token"].(string)
	token, err := strconv.ParseUint(tokenValue, 10, 64)
	if err != nil {
		return lock.AuditEvent{}, fmt.Errorf("message %s: invalid token: %w", msg.ID, err)
	}

	atValue, _ := msg.Values["at"].(string)
	at, err := time.Parse(time.RFC3339Nano, atValue)
	if err != nil {
		return lock.AuditEvent{}, fmt.Errorf("message %s: invalid timestamp: %w", msg.ID, err)
	}

	key, _ := msg.Values["lock_key"].(string)
	instanceID, _ := msg.Values["instance_id"].(string)
	errText, _ := msg.Values["error"].(string)

	return lock.AuditEvent{
		Kind:       kind,
		Key:        key,
		Token:      lock.Token(token),
		InstanceID: instanceID,
		At:         at,
		Error:      errText,
	}, nil
}
