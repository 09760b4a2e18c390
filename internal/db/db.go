package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cacaowallet/internal/config"
	"cacaowallet/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const maxTxAttempts = 5

var ErrRetryLimitExceeded = errors.New("transaction retry limit exceeded")

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) SQLXTxRunner {
	return SQLXTxRunner{db: db}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return WithTx(ctx, r.db, fn)
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    30,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnectTimeout:  30 * time.Second,
	}
}

// Connect opens the pool and waits for the database to accept connections.
func Connect(ctx context.Context, databaseURL string, pool PoolConfig) (*sqlx.DB, error) {
	database, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}
	database.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	database.SetMaxIdleConns(pool.MaxIdleConns)
	database.SetMaxOpenConns(pool.MaxOpenConns)
	database.SetConnMaxLifetime(pool.ConnMaxLifetime)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = pool.ConnectTimeout
	attempt := 0
	ping := func() error {
		attempt++
		if err := database.PingContext(ctx); err != nil {
			logger.Warn("Waiting for database", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return database, nil
}

// WithTx runs fn inside a SERIALIZABLE transaction. Serialization failures
// and deadlocks roll back and rerun fn from scratch, so fn must not keep
// state between attempts.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryablePGError(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(txBackOff(), maxTxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if isRetryablePGError(lastErr) && attempts >= maxTxAttempts {
			return fmt.Errorf("%w: %v", ErrRetryLimitExceeded, lastErr)
		}
		return err
	}
	return nil
}

func runOnce(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func txBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return b
}

func isRetryablePGError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// IsUniqueViolation reports whether err is a postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// PoolFromConfig fills zero settings with the defaults.
func PoolFromConfig(c config.DatabaseConfig) PoolConfig {
	pool := DefaultPoolConfig()
	if c.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		pool.ConnMaxIdleTime = c.ConnMaxIdleTime
	}
	if c.ConnectTimeout > 0 {
		pool.ConnectTimeout = c.ConnectTimeout
	}
	return pool
}
