package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config for the flow bridge service.
type Config struct {
	Addr             string
	Env              string
	AppSigningSecret string
	BackendBaseURL   string
	PublicBaseURL    string
	SessionTTL       time.Duration
}

// LoadConfig reads configuration from the environment, after LoadDotEnvFile
// had a chance to populate it.
func LoadConfig() (*Config, error) {
	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	backendBase := strings.TrimSpace(os.Getenv("BACKEND_BASE_URL"))
	if backendBase == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL must be configured")
	}
	backendBase = strings.TrimRight(backendBase, "/")

	publicBase := strings.TrimRight(valueOrDefault("PUBLIC_BASE_URL", "https://red-ciudadana.org"), "/")

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Addr:             valueOrDefault("GIN_ADDR", ":8080"),
		Env:              env,
		AppSigningSecret: secret,
		BackendBaseURL:   backendBase,
		PublicBaseURL:    publicBase,
		SessionTTL:       30 * time.Minute,
	}

	if raw := strings.TrimSpace(os.Getenv("SESSION_TTL_MINUTES")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("SESSION_TTL_MINUTES must be a positive integer")
		}
		cfg.SessionTTL = time.Duration(minutes) * time.Minute
	}

	return cfg, nil
}

// LoadDotEnvFile loads KEY=VALUE pairs from a dotenv file without
// overriding variables already present in the environment. Lines may carry
// an `export ` prefix and values may be single- or double-quoted; a missing
// file is not an error.
func LoadDotEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, unquoteEnvValue(strings.TrimSpace(value)))
	}
	return nil
}

func unquoteEnvValue(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '"' || first == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
