package kafka

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger interface for customizable logging. Arguments after the message
// are alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ZapLogger implements Logger on top of a zap sugared logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// NewDefaultLogger creates a production zap logger at the given level.
// LogLevelNone disables output.
func NewDefaultLogger(level LogLevel) *ZapLogger {
	if level == LogLevelNone {
		return NewZapLogger(zap.NewNop())
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return NewZapLogger(zap.NewNop())
	}
	return NewZapLogger(logger)
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug logs a debug message
func (l *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message
func (l *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message
func (l *ZapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message
func (l *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered log entries
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// NoopLogger is a logger that does nothing
type NoopLogger struct{}

// NewNoopLogger creates a no-op logger
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// Debug does nothing
func (l *NoopLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Info does nothing
func (l *NoopLogger) Info(msg string, keysAndValues ...interface{}) {}

// Warn does nothing
func (l *NoopLogger) Warn(msg string, keysAndValues ...interface{}) {}

// Error does nothing
func (l *NoopLogger) Error(msg string, keysAndValues ...interface{}) {}
