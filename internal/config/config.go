package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST" default:"localhost"`
	DBPort      string `env:"DB_PORT" default:"5432"`
	DBUser      string `env:"DB_USER" default:"postgres"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME" default:"campus_feedback"`
	DBSSLMode   string `env:"DB_SSLMODE" default:"disable"`
	DBLogLevel  string `env:"DB_LOG_LEVEL" default:"warn"`

	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" default:"72h"`
	MagicLinkTTL time.Duration `env:"MAGIC_LINK_TTL" default:"15m"`

	AllowedEmailDomain string `env:"ALLOWED_EMAIL_DOMAIN" default:"my.fisk.edu"`
	PublicURL          string `env:"PUBLIC_URL" default:"http://localhost:5173"`
	CORSOrigins        string `env:"CORS_ORIGINS" default:"*"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	VotesPerMinute    int `env:"RL_VOTE_PER_MIN" default:"120"`
	CommentsPerMinute int `env:"RL_COMMENT_PER_MIN" default:"30"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.TokenTTL <= 0 || c.MagicLinkTTL <= 0 {
		return errors.New("TOKEN_TTL and MAGIC_LINK_TTL must be positive")
	}
	if c.VotesPerMinute <= 0 || c.CommentsPerMinute <= 0 {
		return errors.New("RL_VOTE_PER_MIN and RL_COMMENT_PER_MIN must be positive")
	}
	if _, err := url.Parse(c.PublicURL); err != nil {
		return fmt.Errorf("PUBLIC_URL is invalid: %w", err)
	}
	c.AllowedEmailDomain = strings.ToLower(strings.TrimPrefix(c.AllowedEmailDomain, "@"))
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from
// the DB_* variables.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
