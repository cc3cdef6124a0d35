package logger

import "go.uber.org/zap"

// New builds the process logger. Development mode logs human-readable output at debug level.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
