package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the root logger. Development mode logs human-readable
// console output; otherwise JSON.
func (l LoggingConfig) NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
