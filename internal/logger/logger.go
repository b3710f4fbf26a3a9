package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is a no-op until Init is called, which
// keeps package tests quiet.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

// Init builds the process logger. profile "prod" emits JSON lines; anything
// else gets the colored development console. level is optional ("" keeps the
// profile default).
func Init(profile, level string) error {
	var cfg zap.Config

	if profile == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("logger: invalid level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logger: build: %w", err)
	}

	Log = l.Sugar().With("service", "mockllm")
	return nil
}

// Desugar exposes the structured logger for libraries that want *zap.Logger.
func Desugar() *zap.Logger {
	return Log.Desugar()
}

func Sync() {
	if Log == nil {
		return
	}

	_ = Log.Sync()
}
