// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "quarry"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("QUARRY_LOG_LEVEL", "info"),
		Format: getenv("QUARRY_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Port returns a zap field for the port number.
func Port(port int) zap.Field { return zap.Int("port", port) }

// Addr returns a zap field for an address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// DataRequest returns a zap field for a data request identifier.
func DataRequest(id string) zap.Field { return zap.String("data_request_id", id) }

// Kind returns a zap field for a backend kind.
func Kind(kind string) zap.Field { return zap.String("kind", kind) }

// Fingerprint returns a zap field for a cache fingerprint.
func Fingerprint(fp string) zap.Field { return zap.String("fingerprint", fp) }

// Status returns a zap field for a terminal invocation status.
func Status(status string) zap.Field { return zap.String("status", status) }

// StatusCode returns a zap field for a backend status code.
func StatusCode(code int) zap.Field { return zap.Int("status_code", code) }

// Binding returns a zap field for a variable binding name.
func Binding(name string) zap.Field { return zap.String("binding", name) }

// Connection returns a zap field for a connection identifier.
func Connection(id string) zap.Field { return zap.String("connection_id", id) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// Path returns a zap field for a URL path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Cached returns a zap field marking whether a response came from cache.
func Cached(hit bool) zap.Field { return zap.Bool("cached", hit) }
