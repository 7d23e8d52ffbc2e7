package di

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/server"
)

// LoggerService wraps the zerolog logger for DI.
type LoggerService struct {
	Logger *zerolog.Logger
	output io.Closer
}

// NewLogger creates the zerolog logger from configuration.
func NewLogger(i do.Injector) (*LoggerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	logger, closer, err := server.NewLogger(cfgSvc.Get().Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &LoggerService{Logger: &logger, output: closer}, nil
}

// Shutdown closes a file-backed log output.
func (s *LoggerService) Shutdown() error {
	return s.output.Close()
}
