package lock

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultSequenceKey holds the store-side fencing token counter.
const DefaultSequenceKey = "locks:fencing:sequence"

var leaseSeconds = int64(LeaseTTL.Seconds())

var acquireScript = redis.NewScript(`
return redis.call("SET", KEYS[1], ARGV[1], "NX", "EX", ARGV[2])
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps leases as plain string keys holding the owner's token.
type RedisStore struct {
	client      *redis.Client
	sequenceKey string
}

// NewRedisStore constructs a Redis-backed lease store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, sequenceKey: DefaultSequenceKey}
}

// WithSequenceKey returns a copy of the store using key for token allocation.
func (s *RedisStore) WithSequenceKey(key string) *RedisStore {
	return &RedisStore{client: s.client, sequenceKey: key}
}

// Open takes a dedicated connection out of the client's pool. It stays
// attached to the session until Close.
func (s *RedisStore) Open(_ context.Context) (Session, error) {
	return &redisSession{conn: s.client.Conn(), sequenceKey: s.sequenceKey}, nil
}

// Ping checks the store through the shared pool.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type redisSession struct {
	conn        *redis.Conn
	sequenceKey string
}

func (s *redisSession) NextToken(ctx context.Context) (Token, error) {
	n, err := s.conn.Incr(ctx, s.sequenceKey).Uint64()
	if err != nil {
		return 0, err
	}
	return Token(n), nil
}

func (s *redisSession) Acquire(ctx context.Context, key string, token Token) (bool, error) {
	err := acquireScript.Run(ctx, s.conn, []string{key}, formatToken(token), leaseSeconds).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *redisSession) Extend(ctx context.Context, key string, token Token) (bool, error) {
	n, err := extendScript.Run(ctx, s.conn, []string{key}, formatToken(token), leaseSeconds).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisSession) Release(ctx context.Context, key string, token Token) (bool, error) {
	n, err := releaseScript.Run(ctx, s.conn, []string{key}, formatToken(token)).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisSession) Close() error {
	return s.conn.Close()
}

func formatToken(token Token) string {
	return strconv.FormatUint(uint64(token), 10)
}
