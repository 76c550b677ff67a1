package engine

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumen-db/lumen"
)

// newLogger builds a zap.SugaredLogger from a LoggingConfig, matching the
// teacher's own zap-based logging setup: console encoding for local/dev
// use, JSON for production, level parsed from the config string.
func newLogger(cfg lumen.LoggingConfig) (*zap.SugaredLogger, error) {
	var level zapcore.Level
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" || cfg.Format == "" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar().Named("lumen"), nil
}
