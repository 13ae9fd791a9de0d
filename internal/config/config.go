package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port              string           `envconfig:"PORT" default:"8080" validate:"required"`
	AppEnv            string           `envconfig:"APP_ENV" default:"production"`
	LogLevel          string           `envconfig:"LOG_LEVEL" default:"INFO"`
	JWTSecret         string           `envconfig:"JWT_SECRET" validate:"required"`
	RequireToken      bool             `envconfig:"CHAT_REQUIRE_TOKEN" default:"false"`
	StoreDriver       string           `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres badger memory"`
	DBUrl             string           `envconfig:"DB_URL" validate:"required_if=StoreDriver postgres"`
	BadgerPath        string           `envconfig:"BADGER_PATH" default:"data/messages" validate:"required_if=StoreDriver badger"`
	HeartbeatInterval time.Duration    `envconfig:"HEARTBEAT_INTERVAL" default:"30s" validate:"min=1s"`
	SendBufferSize    int              `envconfig:"SEND_BUFFER_SIZE" default:"32" validate:"gt=0"`
	DemoUsers         map[int64]string `envconfig:"DEMO_USERS" default:"1:alice,2:bob"`
	CORSOrigins       string           `envconfig:"CORS_ORIGINS" default:"*"`
}

var validate = validator.New()

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromEnv()
}

// FromEnv decodes the process environment without looking for a .env file.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.AppEnv = normalizeEnv(cfg.AppEnv)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
