// Package config loads and validates server configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/gsm"
	"gopkg.in/yaml.v3"
)

const (
	defaultPollDuration = 86400 * time.Second
	defaultRulesPath    = "rules.txt"
	defaultPort         = "9119"
	defaultOverrides    = "portero.yaml"
)

// ServerConfig holds server configuration from environment variables.
type ServerConfig struct {
	TelegramToken string
	Port          string
	RulesPath     string
	AdminUserID   int64
	PollDuration  time.Duration
	Debug         bool
}

// Overrides represents the optional portero.yaml file. Any field left at its
// zero value keeps the environment or default setting.
type Overrides struct {
	RulesPath           string `yaml:"rules_path"`
	PollDurationSeconds int    `yaml:"poll_duration_seconds"`
}

// Load builds the server configuration from environment variables, falling
// back to Secret Manager for the bot token. Missing or malformed required
// settings abort startup.
func Load(ctx context.Context) (ServerConfig, error) {
	// Environment variables take precedence, then Secret Manager.
	getSecret := func(name string) string {
		if v := os.Getenv(name); v != "" {
			slog.Debug("using environment variable", "name", name)
			return v
		}

		value, err := gsm.Fetch(ctx, name)
		if err != nil {
			slog.Debug("secret not found in Secret Manager", "name", name, "error", err)
			return ""
		}
		if value != "" {
			slog.Info("loaded secret from Secret Manager", "name", name)
		}
		return value
	}

	cfg := ServerConfig{
		TelegramToken: getSecret("TELEGRAM_TOKEN"),
		Port:          getEnv("PORT", defaultPort),
		RulesPath:     getEnv("RULES_PATH", defaultRulesPath),
		PollDuration:  defaultPollDuration,
		Debug:         os.Getenv("DEBUG") == "true",
	}

	if cfg.TelegramToken == "" {
		return cfg, errors.New("TELEGRAM_TOKEN environment variable is required")
	}

	adminRaw := os.Getenv("ADMIN_USER_ID")
	if adminRaw == "" {
		return cfg, errors.New("ADMIN_USER_ID environment variable is required")
	}
	adminID, err := strconv.ParseInt(adminRaw, 10, 64)
	if err != nil {
		return cfg, fmt.Errorf("ADMIN_USER_ID must be a numeric Telegram user ID: %w", err)
	}
	cfg.AdminUserID = adminID

	if raw := os.Getenv("POLL_DURATION"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("POLL_DURATION must be a number of seconds: %w", err)
		}
		if seconds <= 0 {
			return cfg, fmt.Errorf("POLL_DURATION must be positive, got %d", seconds)
		}
		cfg.PollDuration = time.Duration(seconds) * time.Second
	}

	if err := applyOverrides(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyOverrides merges the optional YAML overrides file into the config.
// A missing file is not an error; a malformed one is.
func applyOverrides(cfg *ServerConfig) error {
	path := getEnv("PORTERO_CONFIG", defaultOverrides)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("no overrides file", "path", path)
			return nil
		}
		return fmt.Errorf("read overrides file: %w", err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse overrides file %s: %w", path, err)
	}

	if overrides.RulesPath != "" {
		cfg.RulesPath = overrides.RulesPath
	}
	if overrides.PollDurationSeconds != 0 {
		if overrides.PollDurationSeconds < 0 {
			return fmt.Errorf("poll_duration_seconds must be positive, got %d", overrides.PollDurationSeconds)
		}
		cfg.PollDuration = time.Duration(overrides.PollDurationSeconds) * time.Second
	}

	slog.Info("applied overrides file",
		"path", path,
		"rules_path", cfg.RulesPath,
		"poll_duration", cfg.PollDuration)

	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
