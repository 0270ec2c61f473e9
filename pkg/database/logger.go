package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// SlogGormLogger implements gorm.io/gorm/logger.Interface on top of slog.
type SlogGormLogger struct {
	Logger        *slog.Logger
	SlowThreshold time.Duration
	LogLevel      logger.LogLevel
}

func NewSlogGormLogger(l *slog.Logger, logLevel logger.LogLevel) *SlogGormLogger {
	return &SlogGormLogger{
		Logger:        l,
		LogLevel:      logLevel,
		SlowThreshold: 200 * time.Millisecond,
	}
}

func (l *SlogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *SlogGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.Logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *SlogGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.Logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *SlogGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.Logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *SlogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound) && l.LogLevel >= logger.Error:
		l.Logger.ErrorContext(ctx, "gorm.query",
			"file", utils.FileWithLineNum(),
			"error", err,
			"sql", sql,
			"rows", rows,
			"duration", elapsed,
		)
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= logger.Warn:
		l.Logger.WarnContext(ctx, "gorm.slow_query",
			"file", utils.FileWithLineNum(),
			"sql", sql,
			"rows", rows,
			"duration", elapsed,
			"threshold", l.SlowThreshold,
		)
	case l.LogLevel >= logger.Info:
		l.Logger.DebugContext(ctx, "gorm.query",
			"file", utils.FileWithLineNum(),
			"sql", sql,
			"rows", rows,
			"duration", elapsed,
		)
	}
}
