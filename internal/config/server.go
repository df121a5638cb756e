package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Server конфигурация relay-сервера
type Server struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	DBPath          string        `yaml:"db_path" env:"DB_PATH"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	Retention       time.Duration `yaml:"retention" env:"RETENTION"`
	PruneInterval   time.Duration `yaml:"prune_interval" env:"PRUNE_INTERVAL"`
	KeepAlive       time.Duration `yaml:"keep_alive" env:"KEEP_ALIVE"`
	RateWindow      time.Duration `yaml:"rate_window" env:"RATE_WINDOW"`
	RateLimit       int           `yaml:"rate_limit" env:"RATE_LIMIT"`
	PollRateLimit   int           `yaml:"poll_rate_limit" env:"POLL_RATE_LIMIT"`
}

// DefaultServer возвращает конфигурацию сервера по умолчанию
func DefaultServer() Server {
	return Server{
		Addr:            ":8080",
		DBPath:          "relay.db",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Retention:       time.Hour,
		PruneInterval:   5 * time.Minute,
		KeepAlive:       15 * time.Second,
		RateWindow:      time.Minute,
		RateLimit:       120,
		// Клиент в режиме опроса ходит каждые 5 секунд
		PollRateLimit: 600,
	}
}

// LoadServer собирает конфигурацию сервера: значения по умолчанию ->
// YAML файл -> переменные окружения DOCSYNC_SERVER_*
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DOCSYNC_SERVER_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Validate проверяет конфигурацию сервера
func (s Server) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if s.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if s.RateLimit < 1 || s.PollRateLimit < 1 || s.RateWindow <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if s.Retention <= 0 || s.PruneInterval <= 0 {
		return fmt.Errorf("retention and prune_interval must be positive")
	}
	if s.ShutdownTimeout <= 0 || s.KeepAlive <= 0 {
		return fmt.Errorf("shutdown_timeout and keep_alive must be positive")
	}
	return nil
}
