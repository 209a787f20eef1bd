package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	JWT        `yaml:"jwt"`
	Password   `yaml:"password"`
	Storage    `yaml:"storage"`
	RabbitMQ   `yaml:"rabbitmq"`
	HTTPServer `yaml:"http_server"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"0.0.0.0:3000"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	CORSOrigins []string      `yaml:"cors_origins" env:"CORS_ORIGIN" env-separator:","`
	RateLimit   bool          `yaml:"rate_limit" env:"RATE_LIMIT_ENABLED" env-default:"true"`
}

type JWT struct {
	AccessSecret  string   `yaml:"access_secret" env:"JWT_SECRET"`
	AccessTTL     Duration `yaml:"access_ttl" env:"JWT_EXPIRES_IN" env-default:"15m"`
	RefreshSecret string   `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET"`
	RefreshTTL    Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_EXPIRES_IN" env-default:"7d"`
}

type Password struct {
	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

type Storage struct {
	Driver         string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	DatabaseURL    string `yaml:"database_url" env:"DATABASE_URL"`
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"file:qonbaq.db"`
	MaxConns       int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"MIGRATE_ON_START" env-default:"true"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env:"RABBITMQ_QUEUE" env-default:"auth_events"`
}

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:5174",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// MustLoad reads .env (if any), then CONFIG_PATH (if set), then the environment.
func MustLoad() *Config {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var cfg Config

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, errors.New("config file does not exist: " + configPath)
		}

		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.HTTPServer.CORSOrigins) == 0 {
		cfg.HTTPServer.CORSOrigins = defaultCORSOrigins
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case DriverPostgres:
		if cfg.Storage.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Storage.Driver)
	}

	return &cfg, nil
}
