package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
	"github.com/vibast-solutions/ms-go-locks/app/logging"
	"github.com/vibast-solutions/ms-go-locks/app/queue"
	"github.com/vibast-solutions/ms-go-locks/app/state"
	"github.com/vibast-solutions/ms-go-locks/config"
)

// application holds the connections and the locker shared by every command.
type application struct {
	cfg    *config.Config
	logger *logrus.Logger
	redis  *redis.Client
	db     *sql.DB
	store  lock.Store
	locker *lock.Locker
}

// loadConfig loads configuration and builds the logger.
func loadConfig() (*config.Config, *logrus.Logger) {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	return cfg, logger
}

func redisOptions(cfg *config.Config) state.RedisOptions {
	return state.RedisOptions{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Username: cfg.RedisUser,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func mysqlOptions(cfg *config.Config) state.MySQLOptions {
	return state.MySQLOptions{
		DSN:     cfg.MySQLDSN,
		MaxOpen: cfg.MySQLMaxOpen,
		MaxIdle: cfg.MySQLMaxIdle,
		MaxLife: cfg.MySQLMaxLife,
	}
}

// newApplication connects to the configured backend and builds the locker.
// Redis is also opened for a MySQL backend when lock events are enabled.
func newApplication(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	if cfg.LockBackend == config.BackendRedis || cfg.LockEvents {
		client, err := state.ConnectRedis(ctx, redisOptions(cfg), logger)
		if err != nil {
			return nil, err
		}
		app.redis = client
	}

	switch cfg.LockBackend {
	case config.BackendMySQL:
		db, err := state.OpenMySQL(ctx, mysqlOptions(cfg), logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.db = db
		app.store = lock.NewMySQLStore(db)
	default:
		app.store = lock.NewRedisStore(app.redis)
	}

	opts := []lock.Option{
		lock.WithLogger(logger),
		lock.WithRenewInterval(cfg.LockRenewInterval),
		lock.WithExtendTimeout(cfg.LockExtendTimeout),
	}
	if cfg.LockTokenSource == config.TokenSourceProcess {
		opts = append(opts, lock.WithTokenSource(lock.ProcessTokens()))
	}
	if cfg.LockEvents {
		opts = append(opts, lock.WithEventSink(queue.NewEventProducer(app.redis)))
	}

	locker, err := lock.NewLocker(app.store, opts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build locker: %w", err)
	}
	app.locker = locker

	logger.WithFields(logrus.Fields{
		"backend":        cfg.LockBackend,
		"token_source":   cfg.LockTokenSource,
		"renew_interval": cfg.LockRenewInterval.String(),
		"events":         cfg.LockEvents,
	}).Info("locker ready")

	return app, nil
}

// Close releases every connection held by the application.
func (a *application) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close mysql")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close redis")
		}
	}
}
