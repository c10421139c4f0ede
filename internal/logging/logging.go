// SPDX-License-Identifier: Apache-2.0

// Package logging configures the slog logger used by the commands.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the logging configuration.
type Config struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, text
	Output     string `mapstructure:"output"`      // stderr, file
	FilePath   string `mapstructure:"file_path"`   // Path to log file
	MaxSize    int    `mapstructure:"max_size"`    // Megabytes
	MaxBackups int    `mapstructure:"max_backups"` // Number of backups
	MaxAge     int    `mapstructure:"max_age"`     // Days
	Compress   bool   `mapstructure:"compress"`    // Compress backups
}

// Setup builds a logger from cfg, installs it as the slog default, and returns it.
// Records go to stderr unless cfg selects file output.
func Setup(cfg Config, stderr io.Writer) *slog.Logger {
	w := stderr
	if strings.ToLower(cfg.Output) == "file" && cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog level. Unknown names mean warn,
// which keeps the commands quiet unless asked otherwise.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
