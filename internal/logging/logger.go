package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where a logger writes.
type Options struct {
	// Console also writes human-readable lines to stderr. Leave it off while
	// a terminal UI owns the screen.
	Console bool
	// Level is a zap level name; empty means info.
	Level string
	// Hook receives every entry that passes the level filter.
	Hook func(zapcore.Entry)
}

// New creates a zap logger that writes JSON to the given log file path.
// Session name and PID are included as initial fields.
func New(logPath, sessionName string, opts Options, fields ...zap.Field) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if lvl, err := zapcore.ParseLevel(opts.Level); err == nil {
			level = lvl
		}
	}

	encoderCfg := encoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level),
	}
	if opts.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), level))
	}

	zopts := []zap.Option{
		zap.Fields(append([]zap.Field{
			zap.String("session", sessionName),
			zap.Int("pid", os.Getpid()),
		}, fields...)...),
	}
	if opts.Hook != nil {
		hook := opts.Hook
		zopts = append(zopts, zap.Hooks(func(e zapcore.Entry) error {
			hook(e)
			return nil
		}))
	}

	return zap.New(zapcore.NewTee(cores...), zopts...), nil
}

// NewConsole creates a stderr-only logger for the relay and sidecar binaries.
func NewConsole(component string) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return zap.New(core, zap.Fields(
		zap.String("component", component),
		zap.Int("pid", os.Getpid()),
	))
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
