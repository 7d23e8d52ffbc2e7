package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omarluq/keygate/internal/keypool"
	"github.com/omarluq/keygate/internal/rotation"
	"github.com/omarluq/keygate/internal/session"
	"github.com/omarluq/keygate/internal/tracker"
)

// Error types returned in the JSON body.
const (
	TypeConfiguration  = "configuration_error"
	TypeOverloaded     = "overloaded_error"
	TypeRateLimit      = "rate_limit_error"
	TypeSuperseded     = "superseded_error"
	TypeAPI            = "api_error"
	TypeInvalidRequest = "invalid_request_error"
	TypeNotFound       = "not_found_error"
	TypeAuthentication = "authentication_error"
	TypeTooLarge       = "request_too_large"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error type and message.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, ErrorResponse{
		Type:  "error",
		Error: ErrorDetail{Type: errorType, Message: message},
	})
}

// setRetryAfter writes whole seconds, at least one (RFC 9110).
func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}

// retryHints supplies Retry-After values for the error classes that carry one.
type retryHints struct {
	overloaded time.Duration
	rateLimit  time.Duration
}

// writeCallError maps an error from the rotation or session path to a response.
func writeCallError(ctx context.Context, w http.ResponseWriter, err error, hints retryHints) {
	logger := zerolog.Ctx(ctx)
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, keypool.ErrNoCredentials):
		logger.Error().Err(err).Msg("no API keys configured")
		WriteError(w, http.StatusServiceUnavailable, TypeConfiguration, err.Error())

	case errors.Is(err, session.ErrAcquireTimeout):
		logger.Warn().Dur("retry_after", hints.overloaded).Msg("no key freed up in time")
		setRetryAfter(w, hints.overloaded)
		WriteError(w, http.StatusServiceUnavailable, TypeOverloaded,
			"all API keys are busy, please retry later")

	case rotation.IsExhausted(err):
		logger.Warn().Err(err).Dur("retry_after", hints.rateLimit).Msg("rate limited on every attempt")
		setRetryAfter(w, hints.rateLimit)
		WriteError(w, http.StatusTooManyRequests, TypeRateLimit, err.Error())

	case errors.Is(err, tracker.ErrSuperseded), errors.Is(err, context.Canceled):
		logger.Info().Err(err).Msg("request cancelled")
		WriteError(w, http.StatusConflict, TypeSuperseded,
			"request was superseded or cancelled")

	case errors.As(err, &maxBytes):
		WriteError(w, http.StatusRequestEntityTooLarge, TypeTooLarge,
			"request body exceeds the maximum allowed size")

	default:
		logger.Error().Err(err).Msg("upstream call failed")
		WriteError(w, http.StatusBadGateway, TypeAPI, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// writeRaw writes an upstream JSON body byte for byte.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
