package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewPool 建立 pgx 連線池，連不上時以指數退避重試
//
// 參數:
//
//	ctx: 上下文，取消時停止重試
//	cfg: 連線配置
//	log: 連線重試時使用的 logger
//
// 回傳值:
//
//	*pgxpool.Pool: 連線池
//	error: 設定錯誤或重試用盡
func NewPool(ctx context.Context, cfg Config, log *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	maxRetries := cfg.ConnectRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	delay := cfg.RetryInterval
	if delay <= 0 {
		delay = 2 * time.Second
	}

	for i := 1; ; i++ {
		pool, err := connect(ctx, poolConfig)
		if err == nil {
			return pool, nil
		}
		if i >= maxRetries {
			return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", maxRetries, err)
		}
		log.Warn("failed to connect to postgres, retrying",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2 // exponential backoff
	}
}

func connect(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return pool, nil
}
