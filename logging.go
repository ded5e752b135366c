package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"evmarket/pkg/config"

	"github.com/adrg/xdg"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// parseLevel maps a config level name to a log level. Unknown names fall
// back to info.
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return log.LevelTrace, true
	case "debug":
		return log.LevelDebug, true
	case "", "info":
		return log.LevelInfo, true
	case "warn", "warning":
		return log.LevelWarn, true
	case "error":
		return log.LevelError, true
	case "crit":
		return log.LevelCrit, true
	}
	return log.LevelInfo, false
}

// logFilePath returns the configured log file or one under the XDG state
// directory.
func logFilePath(cfg config.Config) (string, error) {
	if cfg.LogFile != "" {
		return cfg.LogFile, nil
	}
	return xdg.StateFile(filepath.Join("evmarket", "evmarket.log"))
}

// setupLogging installs the default logger. The TUI owns the screen, so it
// logs to a rotating file; headless modes log to stderr.
func setupLogging(cfg config.Config, toFile bool) (io.Closer, error) {
	level, known := parseLevel(cfg.LogLevel)

	var (
		handler slog.Handler
		closer  io.Closer = nopCloser{}
	)
	if toFile {
		path, err := logFilePath(cfg)
		if err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		handler = log.LogfmtHandlerWithLevel(lj, level)
		closer = lj
	} else {
		useColor := term.IsTerminal(int(os.Stderr.Fd()))
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, level, useColor)
	}

	log.SetDefault(log.NewLogger(handler))
	if !known {
		log.Warn("Unknown log level, using info", "level", cfg.LogLevel)
	}
	return closer, nil
}
