package lock

import (
	"context"
	"database/sql"
)

// DefaultSequenceName names the MySQL fencing token counter row.
const DefaultSequenceName = "locks"

const createLeasesTable = `
	CREATE TABLE IF NOT EXISTS lock_leases (
		lock_key   VARCHAR(512) NOT NULL PRIMARY KEY,
		token      BIGINT UNSIGNED NOT NULL,
		expires_at DATETIME(6) NOT NULL
	)
`

const createTokensTable = `
	CREATE TABLE IF NOT EXISTS lock_tokens (
		name  VARCHAR(64) NOT NULL PRIMARY KEY,
		value BIGINT UNSIGNED NOT NULL
	)
`

// MySQLStore keeps leases as rows of lock_leases. A row whose expires_at has
// passed is treated as absent. Every operation is a single statement, so
// InnoDB row locking makes each check-and-act indivisible.
type MySQLStore struct {
	db           *sql.DB
	sequenceName string
}

// NewMySQLStore constructs a MySQL-backed lease store.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, sequenceName: DefaultSequenceName}
}

// Migrate creates the lease and token tables when missing.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createLeasesTable); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, createTokensTable)
	return err
}

// Open pins one connection from the pool for the lifetime of the session.
func (s *MySQLStore) Open(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &mysqlSession{conn: conn, sequenceName: s.sequenceName}, nil
}

// Ping checks the database through the pool.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type mysqlSession struct {
	conn         *sql.Conn
	sequenceName string
}

// NextToken relies on LAST_INSERT_ID(expr) being scoped to the connection.
func (s *mysqlSession) NextToken(ctx context.Context) (Token, error) {
	const query = `
		INSERT INTO lock_tokens (name, value)
		VALUES (?, LAST_INSERT_ID(1))
		ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1)
	`
	res, err := s.conn.ExecContext(ctx, query, s.sequenceName)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return Token(id), nil
}

// Acquire inserts the lease or takes over an expired one. MySQL reports one
// affected row for an insert, two for an update and zero when the live lease
// was left untouched. The DSN must not set clientFoundRows.
//
// Assignments run left to right, so token is written first and both clauses
// test the expiry the row had before the statement. A live row is never
// touched, even when it already carries the same token.
func (s *mysqlSession) Acquire(ctx context.Context, key string, token Token) (bool, error) {
	const query = `
		INSERT INTO lock_leases (lock_key, token, expires_at)
		VALUES (?, ?, NOW(6) + INTERVAL ? SECOND)
		ON DUPLICATE KEY UPDATE
			token = IF(expires_at <= NOW(6), VALUES(token), token),
			expires_at = IF(expires_at <= NOW(6), VALUES(expires_at), expires_at)
	`
	res, err := s.conn.ExecContext(ctx, query, key, uint64(token), leaseSeconds)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1 || n == 2, nil
}

func (s *mysqlSession) Extend(ctx context.Context, key string, token Token) (bool, error) {
	const query = `
		UPDATE lock_leases
		SET expires_at = NOW(6) + INTERVAL ? SECOND
		WHERE lock_key = ? AND token = ? AND expires_at > NOW(6)
	`
	return s.execAffected(ctx, query, leaseSeconds, key, uint64(token))
}

func (s *mysqlSession) Release(ctx context.Context, key string, token Token) (bool, error) {
	const query = `
		DELETE FROM lock_leases
		WHERE lock_key = ? AND token = ? AND expires_at > NOW(6)
	`
	return s.execAffected(ctx, query, key, uint64(token))
}

func (s *mysqlSession) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *mysqlSession) Close() error {
	return s.conn.Close()
}
