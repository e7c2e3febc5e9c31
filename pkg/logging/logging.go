// Package logging builds the service logger: an ectologger front end with
// a zap sink so log output is structured JSON in production and readable
// in development.
package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction
type Config struct {
	Level  string
	Pretty bool
}

// New creates the service logger backed by zap. The returned function
// flushes buffered log entries and should run on shutdown.
func New(cfg Config) (ectologger.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, nil, err
	}

	logger := zapadapter.NewZapEctoLogger(zl, nil)

	return logger, func() { _ = zl.Sync() }, nil
}
