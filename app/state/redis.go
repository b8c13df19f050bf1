// Package state connects to the shared stores backing the lock service.
package state

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions selects the Redis server and logical database.
type RedisOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

// Addr returns host:port.
func (o RedisOptions) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// ConnectRedis builds a client, pings it and logs the server version.
func ConnectRedis(ctx context.Context, opts RedisOptions, logger logrus.FieldLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr(),
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr(), err)
	}

	fields := logrus.Fields{"addr": opts.Addr(), "db": opts.DB}
	if info, err := client.Info(ctx, "server").Result(); err == nil {
		if version := parseRedisVersion(info); version != "" {
			fields["version"] = version
		}
	}
	logger.WithFields(fields).Info("connected to redis")

	return client, nil
}

func parseRedisVersion(info string) string {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "redis_version:"); ok {
			return v
		}
	}
	return ""
}
