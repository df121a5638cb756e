// Package config загружает конфигурацию клиента и relay-сервера:
// значения по умолчанию -> YAML файл -> переменные окружения DOCSYNC_*.
// Флаги командной строки применяются поверх в cmd/client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingUserID user_id обязателен: им подписываются правки
	ErrMissingUserID = errors.New("user_id is required")

	// ErrMissingEndpoint api_endpoint обязателен для доставки обновлений
	ErrMissingEndpoint = errors.New("api_endpoint is required")
)

// Config конфигурация клиента синхронизации
type Config struct {
	UserID           string        `yaml:"user_id" env:"USER_ID"`
	APIEndpoint      string        `yaml:"api_endpoint" env:"API_ENDPOINT"`
	DBPath           string        `yaml:"db_path" env:"DB_PATH"`
	Passphrase       string        `yaml:"passphrase" env:"PASSPHRASE"`
	LogLevel         string        `yaml:"log_level" env:"LOG_LEVEL"`
	HealthURL        string        `yaml:"health_url" env:"HEALTH_URL"`
	Transport        Transport     `yaml:"transport" envPrefix:"TRANSPORT_"`
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval" env:"AUTO_SYNC_INTERVAL"`
	Debounce         time.Duration `yaml:"debounce" env:"DEBOUNCE"`
	ProbeInterval    time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	AutoSync         bool          `yaml:"auto_sync" env:"AUTO_SYNC"`
}

// Transport настройки менеджера соединений
type Transport struct {
	WSURL             string        `yaml:"ws_url" env:"WS_URL"`
	StreamURL         string        `yaml:"stream_url" env:"STREAM_URL"`
	MessageURL        string        `yaml:"message_url" env:"MESSAGE_URL"`
	PollURL           string        `yaml:"poll_url" env:"POLL_URL"`
	BaseDelay         time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay          time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout" env:"HEARTBEAT_TIMEOUT"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	Multiplier        float64       `yaml:"multiplier" env:"MULTIPLIER"`
	MaxAttempts       int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// Default возвращает конфигурацию по умолчанию для локального relay-сервера
func Default() Config {
	return Config{
		DBPath:           "docsync.db",
		LogLevel:         "info",
		HealthURL:        "http://localhost:8080/health",
		AutoSync:         true,
		AutoSyncInterval: 30 * time.Second,
		Debounce:         500 * time.Millisecond,
		ProbeInterval:    10 * time.Second,
		Transport: Transport{
			WSURL:             "ws://localhost:8080/ws",
			StreamURL:         "http://localhost:8080/api/v1/stream",
			MessageURL:        "http://localhost:8080/api/v1/messages",
			PollURL:           "http://localhost:8080/api/v1/poll",
			BaseDelay:         time.Second,
			Multiplier:        2,
			MaxDelay:          30 * time.Second,
			MaxAttempts:       10,
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTimeout:  10 * time.Second,
			PollInterval:      5 * time.Second,
		},
	}
}

// Load собирает конфигурацию. Пустой path пропускает чтение файла.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DOCSYNC_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Validate проверяет обязательные поля и диапазоны
func (c Config) Validate() error {
	if c.UserID == "" {
		return ErrMissingUserID
	}
	if c.APIEndpoint == "" {
		return ErrMissingEndpoint
	}
	if err := validateURL("api_endpoint", c.APIEndpoint); err != nil {
		return err
	}
	if c.AutoSync && c.AutoSyncInterval <= 0 {
		return fmt.Errorf("auto_sync_interval must be positive, got %s", c.AutoSyncInterval)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", c.Debounce)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}

	t := c.Transport
	if t.BaseDelay <= 0 || t.MaxDelay < t.BaseDelay {
		return fmt.Errorf("transport delays must satisfy 0 < base_delay <= max_delay")
	}
	if t.Multiplier < 1 {
		return fmt.Errorf("transport multiplier must be >= 1, got %v", t.Multiplier)
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("transport max_attempts must be >= 1, got %d", t.MaxAttempts)
	}
	if t.HeartbeatInterval <= 0 || t.HeartbeatTimeout <= 0 || t.PollInterval <= 0 {
		return fmt.Errorf("transport heartbeat and poll intervals must be positive")
	}
	for name, raw := range map[string]string{
		"transport.ws_url":      t.WSURL,
		"transport.stream_url":  t.StreamURL,
		"transport.message_url": t.MessageURL,
		"transport.poll_url":    t.PollURL,
	} {
		if err := validateURL(name, raw); err != nil {
			return err
		}
	}

	return nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: absolute URL required, got %q", name, raw)
	}
	return nil
}
