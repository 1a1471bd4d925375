package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbApplicationName = "aistudio"
	dbConnectAttempts = 3
	dbConnectBackoff  = 2 * time.Second
	dbConnectTimeout  = 10 * time.Second
)

var errNoDatabaseURL = errors.New("DATABASE_URL is required for batch history")

// NewDBPool opens the batch history pool. History is written once per image,
// so the pool stays small. The database often starts alongside the API, so
// the first ping is retried a few times before giving up.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolCfg, err := dbPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var pingErr error
	for attempt := 1; attempt <= dbConnectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
		pingErr = pool.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			return pool, nil
		}
		if attempt == dbConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * dbConnectBackoff):
		}
	}
	pool.Close()
	return nil, fmt.Errorf("ping database after %d attempts: %w", dbConnectAttempts, pingErr)
}

func dbPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	if cfg == nil || cfg.DatabaseURL == "" {
		return nil, errNoDatabaseURL
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	maxConns := cfg.DBMaxConns
	if maxConns < 1 {
		maxConns = 1
	}
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = 0
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = dbApplicationName
	}
	return poolCfg, nil
}
