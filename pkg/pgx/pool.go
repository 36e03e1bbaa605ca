package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrEmptyConnString = errors.New("connection string is empty")

// PoolConfig describes the pool backing the bridge.
type PoolConfig struct {
	ConnString string
	// Retries is how many times the initial ping is retried before giving up.
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *zap.Logger
}

// Connect creates a pool and waits until the database answers a ping,
// retrying with exponential backoff. Only startup retries; requests served
// from the pool never are.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.ConnString == "" {
		return nil, ErrEmptyConnString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parsing connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		eb.InitialInterval = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		eb.MaxInterval = cfg.MaxBackoff
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithContext(eb, ctx)
	if cfg.Retries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.Retries))
	}

	ping := func() error {
		return pool.Ping(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("database not ready, retrying",
			zap.String("host", poolCfg.ConnConfig.Host),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(ping, b, notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}

	logger.Info("connected to database",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return pool, nil
}
