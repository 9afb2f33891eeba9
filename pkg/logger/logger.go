package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

type Logger struct {
	*zap.SugaredLogger
}

var (
	rootOnce sync.Once
	root     *zap.Logger
)

// Root returns the process-wide zap logger. LOG_FORMAT=console switches to the
// development encoder, LOG_LEVEL sets the minimum level.
func Root() *zap.Logger {
	rootOnce.Do(func() {
		var cfg zap.Config
		switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
		case "console", "dev", "development":
			cfg = zap.NewDevelopmentConfig()
		default:
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
			if parsed, err := zapcore.ParseLevel(lvl); err == nil {
				cfg.Level = zap.NewAtomicLevelAt(parsed)
			}
		}
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		root = l
	})
	return root
}

// Named returns a child logger tagged with the given name.
func Named(name string) (*Logger, error) {
	return &Logger{SugaredLogger: Root().Named(name).Sugar()}, nil
}

func MustNamed(name string) *Logger {
	l, err := Named(name)
	if err != nil {
		panic(err)
	}
	return l
}

// Nop is used by tests that don't care about output.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Unwrap() *zap.SugaredLogger {
	return l.SugaredLogger
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

// Logw logs at an arbitrary level, used where the level is computed from a result code.
func (l *Logger) Logw(level Level, msg string, keysAndValues ...any) {
	switch {
	case level >= ErrorLevel:
		l.Errorw(msg, keysAndValues...)
	case level == WarnLevel:
		l.Warnw(msg, keysAndValues...)
	case level == InfoLevel:
		l.Infow(msg, keysAndValues...)
	default:
		l.Debugw(msg, keysAndValues...)
	}
}

func Reflect(key string, v any) zap.Field {
	return zap.Reflect(key, v)
}

func Sync() {
	_ = Root().Sync()
}
