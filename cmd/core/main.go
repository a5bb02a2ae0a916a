package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	grpc_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/grpc"
	http_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/http"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/event"
	memory_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/metrics"
	mysql_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/secret"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/clock"
	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
	"github.com/JoeShih716/go-wallet-ledger/pkg/postgres"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

func main() {
	// 1. 載入設定
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited with error", zap.Error(err))
	}
	zlog.Info("Server exited")
}

func run(cfg Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 帳戶儲存
	repo, closeRepo, err := buildRepository(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeRepo()

	// 3. 事件發布 (log 一定有，Redis / Kafka 有設定才加)
	publisher, closePublisher := buildPublisher(ctx, cfg, zlog)
	defer closePublisher()

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 5. 初始化 UseCase
	engine := usecase.NewEngine(cfg.Ledger.Limits, secret.NewBcryptVerifier(cfg.Ledger.BcryptCost), clock.NewMonotonic())
	opts := usecase.DefaultOptions()
	opts.OperationTimeout = cfg.Ledger.OperationTimeout
	opts.MaxRetries = cfg.Ledger.MaxRetries
	coreUseCase := usecase.NewCoreUseCase(repo, engine,
		usecase.WithOptions(opts),
		usecase.WithLogger(zlog.Named("core")),
		usecase.WithPublisher(publisher),
		usecase.WithRecorder(metrics.NewPrometheusRecorder(registry)),
	)

	// 6. HTTP
	tokens, err := http_adapter.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	handler := http_adapter.NewHandler(coreUseCase, tokens, zlog.Named("http"), cfg.Ledger.StatementScale)
	httpServer := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: http_adapter.NewRouter(handler, http_adapter.RouterOptions{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		}),
	}

	// 7. gRPC
	grpcServer := grpc_adapter.NewServer(grpc_adapter.NewGrpcServer(coreUseCase, zlog.Named("grpc")))
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		zlog.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		zlog.Info("Starting gRPC server", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	// Graceful Shutdown
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	zlog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	return serveErr
}

// buildRepository 依 storage.driver 建立 AccountRepository
// 回傳的 close 會依序停止寫入並釋放資源
func buildRepository(ctx context.Context, cfg Config, zlog *zap.Logger) (usecase.AccountRepository, func(), error) {
	switch cfg.Storage.Driver {
	case StorageMySQL:
		client, err := mysql.NewClient(cfg.MySQL, zlog)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mysql: %w", err)
		}
		repo := mysql_adapter.NewAccountRepository(client)
		if err := repo.AutoMigrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("migrate mysql: %w", err)
		}
		zlog.Info("Connected to MySQL successfully")
		return repo, func() { _ = client.Close() }, nil

	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres, zlog)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo := postgres_adapter.NewAccountRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		zlog.Info("Connected to PostgreSQL successfully")
		return repo, pool.Close, nil
	}

	// 記憶體儲存，以 WAL 重建狀態
	var walFile *wal.WAL
	closeWAL := func() {}
	if cfg.Storage.WALPath != "" {
		w, err := wal.NewWAL(cfg.Storage.WALPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open wal: %w", err)
		}
		walFile = w
		closeWAL = func() { _ = w.Close() }
	} else {
		zlog.Warn("WAL disabled, accounts will not survive a restart")
	}

	if cfg.Storage.Driver == StorageMemoryLMAX {
		repo, err := memory_adapter.NewLMAXRepository(walFile, cfg.Storage.LMAXBuffer)
		if err != nil {
			closeWAL()
			return nil, nil, fmt.Errorf("init lmax repository: %w", err)
		}
		writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
		repo.Start(writerCtx)
		zlog.Info("Using LMAX repository", zap.String("wal", cfg.Storage.WALPath))
		return repo, func() {
			// 等 writer 處理完佇列再關 WAL
			stopWriter()
			<-repo.Done()
			closeWAL()
		}, nil
	}

	repo, err := memory_adapter.NewMutexRepository(walFile)
	if err != nil {
		closeWAL()
		return nil, nil, fmt.Errorf("init mutex repository: %w", err)
	}
	zlog.Info("Using mutex repository", zap.String("wal", cfg.Storage.WALPath))
	return repo, closeWAL, nil
}

func buildPublisher(ctx context.Context, cfg Config, zlog *zap.Logger) (usecase.EventPublisher, func()) {
	publishers := event.Fanout{event.NewLogPublisher(zlog.Named("event"))}
	var closers []func()

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Warn("redis ping failed", zap.Error(err))
		}
		publishers = append(publishers, event.NewRedisPublisher(rdb, cfg.Redis.Channel))
		closers = append(closers, func() { _ = rdb.Close() })
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := event.NewKafkaPublisher(event.NewKafkaWriter(cfg.Kafka, zlog.Named("kafka")))
		publishers = append(publishers, kp)
		closers = append(closers, func() {
			if err := kp.Close(); err != nil {
				zlog.Warn("close kafka writer", zap.Error(err))
			}
		})
	}

	return publishers, func() {
		for _, c := range closers {
			c()
		}
	}
}
