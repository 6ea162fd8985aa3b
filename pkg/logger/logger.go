package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger represents a structured key/value logger
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with the specified level. Production
// environments get JSON output, everything else the console encoder.
func NewLogger(level string, env string) Logger {
	var config zap.Config

	if strings.EqualFold(env, "production") {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.Level = zap.NewAtomicLevelAt(parseLevel(level))

	l, err := config.Build(zap.AddCallerSkip(1))

	if err != nil {
		// Fall back to the stock production logger rather than running blind
		l = zap.Must(zap.NewProduction(zap.AddCallerSkip(1)))
	}

	return &zapLogger{sugar: l.Sugar()}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) {
	l.sugar.Debugw(msg, keyvals...)
}

func (l *zapLogger) Info(msg string, keyvals ...interface{}) {
	l.sugar.Infow(msg, keyvals...)
}

func (l *zapLogger) Warn(msg string, keyvals ...interface{}) {
	l.sugar.Warnw(msg, keyvals...)
}

func (l *zapLogger) Error(msg string, keyvals ...interface{}) {
	l.sugar.Errorw(msg, keyvals...)
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
