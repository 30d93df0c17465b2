// Package config содержит логику чтения конфигурации витрины пекарни.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultAutoCompleteDelay = 5 * time.Minute
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress           string        `env:"RUN_ADDRESS"`
	DatabaseURI          string        `env:"DATABASE_URI"`
	NotifyWebhookAddress string        `env:"NOTIFY_WEBHOOK_ADDRESS"`
	SessionSecret        string        `env:"SESSION_SECRET"`
	AutoCompleteDelay    time.Duration `env:"AUTO_COMPLETE_DELAY"`
	AdminLogins          []string      `env:"ADMIN_LOGINS" envSeparator:","`
	EnvFile              string        `env:"ENV_FILE" envDefault:".env"`
}

// Parse считывает конфигурацию из .env-файла, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами, .env не перезаписывает уже заданные переменные.
func Parse() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NotifyWebhookAddress, "n", "", "notification webhook address")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing secret")
	flag.DurationVar(&cfg.AutoCompleteDelay, "t", defaultAutoCompleteDelay, "delay before a preparing order is completed")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.NotifyWebhookAddress != "" {
		cfg.NotifyWebhookAddress = fromEnv.NotifyWebhookAddress
	}
	if fromEnv.SessionSecret != "" {
		cfg.SessionSecret = fromEnv.SessionSecret
	}
	if fromEnv.AutoCompleteDelay != 0 {
		cfg.AutoCompleteDelay = fromEnv.AutoCompleteDelay
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.AutoCompleteDelay <= 0 {
		return nil, fmt.Errorf("auto-complete delay must be positive, got %s", cfg.AutoCompleteDelay)
	}

	return cfg, nil
}

func loadEnvFile() error {
	var probe struct {
		EnvFile string `env:"ENV_FILE" envDefault:".env"`
	}
	if err := env.Parse(&probe); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if err := godotenv.Load(probe.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", probe.EnvFile, err)
	}
	return nil
}
