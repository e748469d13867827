package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	ServerAddr         string        `env:"CHATD_ADDR" env-default:"localhost:8000"`
	DatabaseDSN        string        `env:"CHATD_DATABASE_DSN"`
	RedisAddr          string        `env:"CHATD_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword      string        `env:"CHATD_REDIS_PASSWORD"`
	RedisDB            int           `env:"CHATD_REDIS_DB" env-default:"0"`
	SigningSecret      string        `env:"CHATD_SIGNING_KEY"`
	AllowedOrigins     []string      `env:"CHATD_ALLOWED_ORIGINS"`
	PresenceStaleAfter time.Duration `env:"CHATD_PRESENCE_STALE_AFTER" env-default:"60s"`
	TypingTTL          time.Duration `env:"CHATD_TYPING_TTL" env-default:"5s"`

	SigningKey []byte `env:"-"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// Load reads configuration from the environment and validates it. Flag
// values already applied to cfg by the caller survive unless the
// environment overrides them.
func Load(cfg *Config) (*Config, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	return validate(cfg)
}

func validate(cfg *Config) (*Config, error) {
	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if cfg.PresenceStaleAfter <= 0 {
		return nil, fmt.Errorf("presence staleness window must be positive")
	}
	if cfg.TypingTTL <= 0 {
		return nil, fmt.Errorf("typing TTL must be positive")
	}

	signingKey, err := decodeSigningSecret(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = signingKey

	return cfg, nil
}
