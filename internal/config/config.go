package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type ContentSource string

const (
	ContentDB   ContentSource = "db"
	ContentYAML ContentSource = "yaml"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/crawl.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// RedisURL is optional; an empty value disables the catalog cache.
	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	ContentSource ContentSource `env:"CONTENT_SOURCE" envDefault:"db"`
	ContentDir    string        `env:"CONTENT_DIR" envDefault:"content"`

	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"citycrawl"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	AdminEmail        string `env:"ADMIN_EMAIL"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
}

// Load reads configuration from the environment, after merging in a .env
// file from the working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch cfg.ContentSource {
	case ContentDB, ContentYAML:
	default:
		return nil, fmt.Errorf("CONTENT_SOURCE must be %q or %q, got %q", ContentDB, ContentYAML, cfg.ContentSource)
	}
	return &cfg, nil
}
