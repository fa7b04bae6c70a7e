package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBPath           string
	APIPort          int
	TLSCertFile      string
	TLSKeyFile       string
	ConnectorTimeout time.Duration
}

func Load() *Config {
	return &Config{
		DBPath:           getEnv("QUARRY_DB", "quarry.db"),
		APIPort:          getEnvInt("QUARRY_API_PORT", 8080),
		TLSCertFile:      os.Getenv("QUARRY_TLS_CERT"),
		TLSKeyFile:       os.Getenv("QUARRY_TLS_KEY"),
		ConnectorTimeout: getEnvDuration("QUARRY_CONNECTOR_TIMEOUT", 30*time.Second),
	}
}

func Default() *Config {
	return &Config{
		DBPath:           "quarry.db",
		APIPort:          8080,
		ConnectorTimeout: 30 * time.Second,
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
