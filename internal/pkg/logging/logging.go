// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/esoteric-oracle/oracle-service/internal/config"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Setup applies cfg to the global logger and returns a closer for the file
// sink. The closer is a no-op when no file is configured.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out, closer, err := Writer(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

// Writer builds the log output for cfg on top of stdout. With a file
// configured, entries go to both.
func Writer(cfg config.LogConfig, stdout io.Writer) (io.Writer, io.Closer, error) {
	var out io.Writer
	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		out = stdout
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	if cfg.File == "" {
		return out, nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 30),
		Compress:   true,
	}
	// The file receives raw JSON regardless of format.
	return zerolog.MultiLevelWriter(out, file), file, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
