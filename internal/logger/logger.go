// Package logger builds the zap loggers used by the service: the application
// logger and the audit diagnostic stream, each optionally rotated to disk.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level string
	// AppLogPath tees application logs into a rotated file when set.
	AppLogPath string
	// AuditLogPath receives the audit stream; stdout when empty.
	AuditLogPath string
	MaxSize      int // megabytes
	MaxBackups   int
	MaxAge       int // days
	Compress     bool
}

func DefaultConfig() Config {
	return Config{
		Level:        "info",
		AuditLogPath: "logs/audit.log",
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
	}
}

// Loggers bundles the application and audit loggers with their file sinks.
type Loggers struct {
	App   *zap.Logger
	Audit *zap.Logger

	closers []io.Closer
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func New(cfg Config) (*Loggers, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	enc := zapcore.NewJSONEncoder(encoderConfig())
	l := &Loggers{}

	appCore := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	if cfg.AppLogPath != "" {
		rot := l.rotator(cfg, cfg.AppLogPath)
		appCore = zapcore.NewTee(appCore, zapcore.NewCore(enc.Clone(), zapcore.AddSync(rot), level))
	}
	l.App = zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// The audit stream is always INFO and above.
	var auditSink zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if cfg.AuditLogPath != "" {
		auditSink = zapcore.AddSync(l.rotator(cfg, cfg.AuditLogPath))
	}
	l.Audit = zap.New(zapcore.NewCore(enc.Clone(), auditSink, zapcore.InfoLevel)).Named("audit")

	return l, nil
}

func (l *Loggers) rotator(cfg Config, path string) *lumberjack.Logger {
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	l.closers = append(l.closers, rot)
	return rot
}

// Close flushes both loggers and closes rotated files.
func (l *Loggers) Close() error {
	_ = l.App.Sync()
	_ = l.Audit.Sync()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
