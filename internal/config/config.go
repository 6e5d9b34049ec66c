package config

import (
	"fmt"
	"time"

	"diamondauction/internal/models"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	RedisAuctionsHost     string `env:"REDIS_AUCTIONS_HOST"     envDefault:"localhost"`
	RedisAuctionsPort     uint16 `env:"REDIS_AUCTIONS_PORT"     envDefault:"6379"   validate:"min=1000,max=65535"`
	RedisAuctionsPassword string `env:"REDIS_AUCTIONS_PASSWORD"`
	RedisAuctionsDb       int    `env:"REDIS_AUCTIONS_DB"       envDefault:"0"      validate:"min=0,max=15"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"auction_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"auction_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"auction_db"`

	BidMinIncrement    decimal.Decimal `env:"BID_MIN_INCREMENT"    envDefault:"0.01"`
	ProxyTieBreak      string          `env:"PROXY_TIE_BREAK"      envDefault:"earliest" validate:"oneof=earliest latest"`
	ProxyMaxIterations int             `env:"PROXY_MAX_ITERATIONS" envDefault:"0"        validate:"min=0"`
	PublishRetries     int             `env:"PUBLISH_RETRIES"      envDefault:"3"        validate:"min=0,max=10"`

	// EventsBackend selects where engine events go: Redis Pub/Sub for
	// multi-instance deployments, or in-process for a single node.
	EventsBackend string `env:"EVENTS_BACKEND" envDefault:"redis" validate:"oneof=redis local"`

	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"2s"  validate:"min=100ms"`
	SyncInterval      time.Duration `env:"SYNC_INTERVAL"      envDefault:"10s" validate:"min=1s"`
	UserNameCacheSize int           `env:"USER_NAME_CACHE_SIZE" envDefault:"1024" validate:"min=1"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}
	return Parse()
}

// Parse reads and validates the configuration from the process environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	if !cfg.BidMinIncrement.IsPositive() || !models.HasMoneyPrecision(cfg.BidMinIncrement) {
		err := fmt.Errorf("BID_MIN_INCREMENT must be positive with at most %d decimals, got %s", models.MoneyPlaces, cfg.BidMinIncrement)
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
