package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/simp-lee/logger"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold marks SQL statements logged as slow.
const slowQueryThreshold = 200 * time.Millisecond

// SetupLogger builds the process logger from cfg and installs it as the slog
// default. Close the returned logger on shutdown.
func SetupLogger(cfg *LogConfig) (*logger.Logger, error) {
	if cfg == nil {
		return nil, errors.New("log config is nil")
	}
	log, err := logger.New(BuildLoggerOpts(cfg)...)
	if err != nil {
		return nil, err
	}
	log.SetDefault()
	return log, nil
}

// BuildLoggerOpts maps cfg onto logger options. Unknown levels log at info
// and unknown formats use the library's console layout. File rotation
// settings apply only with a FilePath and only when non-zero.
func BuildLoggerOpts(cfg *LogConfig) []logger.Option {
	if cfg == nil {
		return nil
	}
	format := parseFormat(cfg.Format)
	return append(consoleOptions(cfg, format), fileOptions(cfg, format)...)
}

func consoleOptions(cfg *LogConfig, format logger.OutputFormat) []logger.Option {
	color := cfg.Color == nil || *cfg.Color
	return []logger.Option{
		logger.WithLevel(parseLevel(cfg.Level)),
		logger.WithMiddleware(logger.ContextMiddleware()),
		logger.WithConsoleFormat(format),
		logger.WithConsoleColor(color),
	}
}

func fileOptions(cfg *LogConfig, format logger.OutputFormat) []logger.Option {
	if cfg.FilePath == "" {
		return nil
	}
	opts := []logger.Option{logger.WithFilePath(cfg.FilePath), logger.WithFileFormat(format)}
	if cfg.MaxSizeMB > 0 {
		opts = append(opts, logger.WithMaxSizeMB(cfg.MaxSizeMB))
	}
	if cfg.RetentionDays > 0 {
		opts = append(opts, logger.WithRetentionDays(cfg.RetentionDays))
	}
	if cfg.MaxBackups > 0 {
		opts = append(opts, logger.WithMaxBackups(cfg.MaxBackups))
	}
	if cfg.CompressRotated != nil {
		opts = append(opts, logger.WithCompressRotated(*cfg.CompressRotated))
	}
	return opts
}

// NewGormLogger routes GORM's SQL logging through log. Every statement is
// logged when log has debug enabled; otherwise only slow statements and
// errors are. ErrRecordNotFound is an expected lookup outcome and is skipped.
func NewGormLogger(log *slog.Logger) gormlogger.Interface {
	if log == nil {
		log = slog.Default()
	}
	level := gormlogger.Warn
	if log.Enabled(context.Background(), slog.LevelDebug) {
		level = gormlogger.Info
	}
	return gormlogger.NewSlogLogger(log.With(slog.String("component", "gorm")), gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      level != gormlogger.Info,
		LogLevel:                  level,
	})
}

var logFormatNames = map[string]logger.OutputFormat{
	"text": logger.FormatText,
	"json": logger.FormatJSON,
}

var logLevelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func parseFormat(s string) logger.OutputFormat {
	if f, ok := logFormatNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f
	}
	return logger.FormatCustom
}

func parseLevel(s string) slog.Level {
	if l, ok := logLevelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}
