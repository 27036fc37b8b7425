// Package logger wraps a process-global zap logger with optional file
// rotation. Components take request-scoped children via With/IntoContext.
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level    string
	Format   string // "json" or "console"
	ToStdout bool
	ToFile   bool
	FilePath string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (o Options) normalized() Options {
	if o.Level == "" {
		o.Level = "info"
	}
	if o.Format == "" {
		o.Format = "json"
	}
	if !o.ToStdout && !o.ToFile {
		o.ToStdout = true
	}
	if o.FilePath == "" {
		o.FilePath = "logs/sparkpilot.log"
	}
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 100
	}
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = 7
	}
	return o
}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

type ctxKey struct{}

// Init builds and installs the global logger.
func Init(options Options) error {
	options = options.normalized()

	level, err := parseLevel(options.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if options.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var syncers []zapcore.WriteSyncer
	if options.ToStdout {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}
	if options.ToFile {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   options.FilePath,
			MaxSize:    options.MaxSizeMB,
			MaxBackups: options.MaxBackups,
			MaxAge:     options.MaxAgeDays,
			Compress:   options.Compress,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	zl := zap.New(core, zap.AddCaller())

	mu.Lock()
	prev := global
	global = zl
	mu.Unlock()
	if prev != nil {
		_ = prev.Sync()
	}
	return nil
}

func parseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", raw)
	}
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// With returns a child of the global logger with fields attached.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// IntoContext stores a logger in ctx.
func IntoContext(ctx context.Context, zl *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, zl)
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if zl, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && zl != nil {
			return zl
		}
	}
	return L()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}
