package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultSessionSecret = "hemlig"

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	Port string

	SessionSecret  string
	SessionBackend string
	SessionMaxAge  int
	RedisAddr      string
	RedisPassword  string

	PostStore string
	SQLiteDSN string
	IDPolicy  IDPolicy

	LogLevel    logrus.Level
	TemplateDir string
	StaticDir   string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig reads configuration. A missing .env file is not an error.
func loadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getenv("PORT", "3000"),
		SessionSecret:  getenv("SESSION_SECRET", defaultSessionSecret),
		SessionBackend: strings.ToLower(getenv("SESSION_BACKEND", "memory")),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		PostStore:      strings.ToLower(getenv("POST_STORE", "memory")),
		SQLiteDSN:      getenv("SQLITE_DSN", ":memory:"),
		TemplateDir:    getenv("TEMPLATE_DIR", "templates"),
		StaticDir:      getenv("STATIC_DIR", "static"),
	}

	maxAge, err := strconv.Atoi(getenv("SESSION_MAX_AGE", "86400"))
	if err != nil || maxAge <= 0 {
		return cfg, errors.Errorf("invalid SESSION_MAX_AGE %q", os.Getenv("SESSION_MAX_AGE"))
	}
	cfg.SessionMaxAge = maxAge

	switch cfg.SessionBackend {
	case "memory", "redis", "cookie":
	default:
		return cfg, errors.Errorf("invalid SESSION_BACKEND %q", cfg.SessionBackend)
	}

	switch cfg.PostStore {
	case "memory", "sqlite":
	default:
		return cfg, errors.Errorf("invalid POST_STORE %q", cfg.PostStore)
	}

	if cfg.IDPolicy, err = parseIDPolicy(getenv("ID_POLICY", string(IDSequence))); err != nil {
		return cfg, errors.Wrap(err, "invalid ID_POLICY")
	}

	if cfg.LogLevel, err = logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return cfg, errors.Wrap(err, "invalid LOG_LEVEL")
	}

	return cfg, nil
}
