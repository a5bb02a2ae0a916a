package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/event"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
	"github.com/JoeShih716/go-wallet-ledger/pkg/postgres"
)

// StorageDriver 帳戶儲存方式
type StorageDriver string

const (
	StorageMemoryMutex StorageDriver = "memory-mutex"
	StorageMemoryLMAX  StorageDriver = "memory-lmax"
	StorageMySQL       StorageDriver = "mysql"
	StoragePostgres    StorageDriver = "postgres"
)

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json / console
	} `yaml:"log"`

	HTTP struct {
		Addr            string        `yaml:"addr"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	GRPC struct {
		Addr string `yaml:"addr"`
	} `yaml:"grpc"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Storage struct {
		Driver     StorageDriver `yaml:"driver"`
		WALPath    string        `yaml:"wal_path"` // 空字串代表不寫 WAL (僅限開發)
		LMAXBuffer int           `yaml:"lmax_buffer"`
	} `yaml:"storage"`

	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`

	Ledger struct {
		Limits           domain.Limits `yaml:"limits"`
		OperationTimeout time.Duration `yaml:"operation_timeout"`
		MaxRetries       int           `yaml:"max_retries"`
		BcryptCost       int           `yaml:"bcrypt_cost"`
		// StatementScale 對帳單顯示的小數位數，原始單位為整數盧比時為 0
		StatementScale int32 `yaml:"statement_scale"`
	} `yaml:"ledger"`

	Redis struct {
		Addr     string `yaml:"addr"` // 空字串代表不發布到 Redis
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Kafka event.KafkaConfig `yaml:"kafka"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.RequestTimeout = 30 * time.Second
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.GRPC.Addr = ":50051"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Storage.Driver = StorageMemoryMutex
	cfg.Storage.WALPath = "wal.log"
	cfg.Storage.LMAXBuffer = 1000
	cfg.Ledger.Limits = domain.DefaultLimits()
	cfg.Ledger.OperationTimeout = 5 * time.Second
	cfg.Ledger.MaxRetries = 3
	return cfg
}

// loadConfig 讀取 .env、YAML 設定檔，再以 WALLET_* 環境變數覆寫
func loadConfig() (Config, error) {
	// .env 不存在時沿用系統環境變數
	_ = godotenv.Load()

	cfg := defaultConfig()
	path := getEnv("WALLET_CONFIG", "config/config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && os.Getenv("WALLET_CONFIG") == "":
		// 沒有設定檔時全部使用預設值
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)

	// 補全 MySQL 預設配置 (如果 yaml 沒寫)
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = 20
	}

	if cfg.Auth.JWTSecret == "" {
		return cfg, fmt.Errorf("auth.jwt_secret (WALLET_JWT_SECRET) is required")
	}
	switch cfg.Storage.Driver {
	case StorageMemoryMutex, StorageMemoryLMAX, StorageMySQL, StoragePostgres:
	default:
		return cfg, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = getEnv("WALLET_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("WALLET_LOG_FORMAT", cfg.Log.Format)
	cfg.HTTP.Addr = getEnv("WALLET_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.GRPC.Addr = getEnv("WALLET_GRPC_ADDR", cfg.GRPC.Addr)
	cfg.Auth.JWTSecret = getEnv("WALLET_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Storage.Driver = StorageDriver(getEnv("WALLET_STORAGE_DRIVER", string(cfg.Storage.Driver)))
	cfg.Storage.WALPath = getEnv("WALLET_WAL_PATH", cfg.Storage.WALPath)
	cfg.MySQL.Host = getEnv("WALLET_MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.Password = getEnv("WALLET_MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.Postgres.Host = getEnv("WALLET_POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Password = getEnv("WALLET_POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Redis.Addr = getEnv("WALLET_REDIS_ADDR", cfg.Redis.Addr)
	if brokers := getEnv("WALLET_KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if v, err := strconv.Atoi(getEnv("WALLET_MAX_RETRIES", "")); err == nil {
		cfg.Ledger.MaxRetries = v
	}
}

// getEnv 讀取環境變數，沒有設定時回傳 fallback
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
