package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/omarluq/keygate/internal/auth"
	"github.com/omarluq/keygate/internal/config"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware so that the first one listed runs first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RequestIDMiddleware honors an incoming X-Request-ID or generates one, and
// attaches a request-scoped logger.
func RequestIDMiddleware(base zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := base.WithContext(r.Context())
			ctx = WithRequestID(ctx, r.Header.Get(HeaderRequestID))
			w.Header().Set(HeaderRequestID, RequestID(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"api_key"\s*:\s*"[^"]+"`),
	regexp.MustCompile(`"authorization"\s*:\s*"[^"]+"`),
	regexp.MustCompile(`"token"\s*:\s*"[^"]+"`),
	regexp.MustCompile(`"secret"\s*:\s*"[^"]+"`),
}

func redact(body string) string {
	return lo.Reduce(sensitivePatterns, func(s string, re *regexp.Regexp, _ int) string {
		return re.ReplaceAllString(s, `"[REDACTED]"`)
	}, body)
}

// bodyPreview reads up to limit bytes and restores the body for the handler.
func bodyPreview(r *http.Request, limit int) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))
	if err != nil || len(head) == 0 {
		return ""
	}
	return redact(string(head))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs each request and its outcome. Debug options are
// read per request so hot reload takes effect immediately.
func LoggingMiddleware(debug func() config.DebugOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := zerolog.Ctx(r.Context()).With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			opts := debug()
			if opts.LogRequestBody && logger.GetLevel() <= zerolog.DebugLevel {
				if preview := bodyPreview(r, opts.GetMaxBodyLogSize()); preview != "" {
					logger.Debug().Str("body_preview", preview).Msg("request body")
				}
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			event := logger.Info()
			switch {
			case rec.status >= http.StatusInternalServerError:
				event = logger.Error()
			case rec.status >= http.StatusBadRequest:
				event = logger.Warn()
			}
			event.Int("status", rec.status).
				Dur("duration", elapsed).
				Msg(fmt.Sprintf("%s %s -> %d", r.Method, r.URL.Path, rec.status))
		})
	}
}

type authEntry struct {
	authn       auth.Authenticator
	fingerprint string
}

// LiveAuthMiddleware enforces the auth settings of the current config and
// rebuilds the authenticator only when those settings change.
func LiveAuthMiddleware(runtime config.RuntimeConfig) Middleware {
	var cached atomic.Pointer[authEntry]

	current := func() auth.Authenticator {
		srv := runtime.Get().Server
		key := srv.GetEffectiveAPIKey()
		fp := fmt.Sprintf("%t|%d:%s|%d:%s", srv.Auth.AllowBearer,
			len(srv.Auth.BearerSecret), srv.Auth.BearerSecret, len(key), key)
		if e := cached.Load(); e != nil && e.fingerprint == fp {
			return e.authn
		}
		e := &authEntry{
			fingerprint: fp,
			authn:       auth.FromSettings(key, srv.Auth.BearerSecret, srv.Auth.AllowBearer),
		}
		cached.Store(e)
		return e.authn
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authn := current()
			if authn == nil {
				next.ServeHTTP(w, r)
				return
			}
			result := authn.Validate(r)
			if !result.Valid {
				zerolog.Ctx(r.Context()).Warn().
					Str("auth_type", string(result.Type)).
					Str("reason", result.Error).
					Msg("authentication failed")
				WriteError(w, http.StatusUnauthorized, TypeAuthentication, result.Error)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ConcurrencyLimiter caps in-flight requests. The limit can change at
// runtime; zero or less means unlimited.
type ConcurrencyLimiter struct {
	limit   atomic.Int64
	current atomic.Int64
}

// NewConcurrencyLimiter creates a limiter.
func NewConcurrencyLimiter(limit int64) *ConcurrencyLimiter {
	l := &ConcurrencyLimiter{}
	l.limit.Store(limit)
	return l
}

// SetLimit updates the limit.
func (l *ConcurrencyLimiter) SetLimit(limit int64) { l.limit.Store(limit) }

// Limit returns the configured limit.
func (l *ConcurrencyLimiter) Limit() int64 { return l.limit.Load() }

// InFlight returns the number of admitted requests not yet finished.
func (l *ConcurrencyLimiter) InFlight() int64 { return l.current.Load() }

// TryAcquire admits one request if below the limit.
func (l *ConcurrencyLimiter) TryAcquire() bool {
	for {
		limit := l.limit.Load()
		cur := l.current.Load()
		if limit > 0 && cur >= limit {
			return false
		}
		if l.current.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot taken by TryAcquire.
func (l *ConcurrencyLimiter) Release() { l.current.Add(-1) }

// ConcurrencyMiddleware rejects requests over the limit with 503.
func ConcurrencyMiddleware(l *ConcurrencyLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.TryAcquire() {
				zerolog.Ctx(r.Context()).Warn().
					Int64("limit", l.Limit()).
					Msg("request rejected: concurrency limit reached")
				WriteError(w, http.StatusServiceUnavailable, TypeOverloaded,
					"server is at maximum capacity, please retry later")
				return
			}
			defer l.Release()
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyBytesMiddleware caps request bodies; limit is read per request.
func MaxBodyBytesMiddleware(limit func() int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n := limit(); n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
