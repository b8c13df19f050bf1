package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// MySQLOptions configures the connection pool.
type MySQLOptions struct {
	DSN     string
	MaxOpen int
	MaxIdle int
	MaxLife time.Duration
}

// OpenMySQL opens the pool, pings it and logs the server version.
func OpenMySQL(ctx context.Context, opts MySQLOptions, logger logrus.FieldLogger) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// lease acquisition reads changed rows, not matched rows
	if cfg.ClientFoundRows {
		return nil, fmt.Errorf("mysql dsn must not enable clientFoundRows")
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	configurePool(db, opts)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql at %s: %w", cfg.Addr, err)
	}

	logMySQLVersion(ctx, db, logger.WithField("addr", cfg.Addr))
	return db, nil
}

func configurePool(db *sql.DB, opts MySQLOptions) {
	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.MaxLife)
}

func logMySQLVersion(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		logger.WithError(err).Warn("connected to mysql, version unknown")
		return
	}
	logger.WithField("version", version).Info("connected to mysql")
}
