package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omarluq/keygate/internal/config"
)

type ctxKey struct{}

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// NewLogger creates a zerolog.Logger from LoggingConfig. The returned closer
// releases a log file and is a no-op for stdout and stderr.
func NewLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	out, file, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var w io.Writer = out
	if usePretty(cfg, file) {
		w = zerolog.ConsoleWriter{
			Out:             out,
			TimeFormat:      "15:04:05",
			FormatMessage:   func(i any) string { return fmt.Sprintf("-> %v", orEmpty(i)) },
			FormatFieldName: func(i any) string { return fmt.Sprintf("\033[2m%s=\033[0m", i) },
		}
	}

	logger := zerolog.New(w).Level(cfg.ParseLevel()).With().Timestamp().Logger()
	return logger, closerFor(file), nil
}

func orEmpty(i any) any {
	if i == nil {
		return ""
	}
	return i
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func closerFor(f *os.File) io.Closer {
	if f == nil || f == os.Stdout || f == os.Stderr {
		return nopCloser{}
	}
	return f
}

func openOutput(output string) (io.Writer, *os.File, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, os.Stdout, nil
	case "stderr":
		return os.Stderr, os.Stderr, nil
	default:
		f, err := os.OpenFile(filepath.Clean(output), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output: %w", err)
		}
		return f, f, nil
	}
}

func usePretty(cfg config.LoggingConfig, f *os.File) bool {
	if cfg.Pretty {
		return true
	}
	switch cfg.Format {
	case "pretty":
		return true
	case "json":
		return false
	default:
		// console, text or unset: colors only on a terminal
		return f != nil && isatty.IsTerminal(f.Fd())
	}
}

// WithRequestID stores id (or a fresh UUID) in ctx and in its logger.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	ctx = context.WithValue(ctx, ctxKey{}, id)
	logger := log.Ctx(ctx).With().Str("request_id", id).Logger()
	return logger.WithContext(ctx)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
