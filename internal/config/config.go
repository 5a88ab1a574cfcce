package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string
	LogLevel    string

	SessionTTL      time.Duration
	MaxFileBytes    int64
	MaxTextBytes    int
	MaxSessionBytes int64
	MaxItems        int

	// DownloadSecret signs per-item download tokens. Left empty, the
	// server generates an ephemeral secret at startup.
	DownloadSecret string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:            3000,
		GinMode:         "release",
		LogLevel:        "info",
		SessionTTL:      15 * time.Minute,
		MaxFileBytes:    25 * 1024 * 1024,
		MaxTextBytes:    64 * 1024,
		MaxSessionBytes: 100 * 1024 * 1024,
		MaxItems:        200,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}
	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")
	cfg.DownloadSecret = env.Getenv("DOWNLOAD_SECRET")

	if raw := env.Getenv("SESSION_TTL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid SESSION_TTL_SECONDS")
		}
		cfg.SessionTTL = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("MAX_FILE_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_FILE_BYTES")
		}
		cfg.MaxFileBytes = n
	}

	if raw := env.Getenv("MAX_TEXT_BYTES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_TEXT_BYTES")
		}
		cfg.MaxTextBytes = n
	}

	if raw := env.Getenv("MAX_SESSION_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_SESSION_BYTES")
		}
		cfg.MaxSessionBytes = n
	}

	if raw := env.Getenv("MAX_ITEMS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_ITEMS")
		}
		cfg.MaxItems = n
	}

	return cfg, nil
}
