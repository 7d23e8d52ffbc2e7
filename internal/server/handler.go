package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/omarluq/keygate/internal/chat"
	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/gate"
	"github.com/omarluq/keygate/internal/health"
	"github.com/omarluq/keygate/internal/keypool"
	"github.com/omarluq/keygate/internal/ratelimit"
	"github.com/omarluq/keygate/internal/rotation"
	"github.com/omarluq/keygate/internal/session"
	"github.com/omarluq/keygate/internal/tracker"
)

// Deps are the services behind the HTTP routes. Health may be nil.
type Deps struct {
	Runtime  config.RuntimeConfig
	Pool     *keypool.Pool
	Gate     gate.Gate
	Rotator  *rotation.Rotator
	Sessions *session.Dispatcher
	Users    *tracker.Tracker
	Health   *health.Tracker
}

// Handler serves the keygate API.
type Handler struct {
	Deps
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Mode                 string  `json:"mode"`
	CurrentKey           string  `json:"current_key,omitempty"`
	TotalKeys            int     `json:"total_keys"`
	BusyKeys             int     `json:"busy_keys"`
	FreeKeys             int     `json:"free_keys"`
	CoolingKeys          int     `json:"cooling_keys"`
	Waiting              int     `json:"waiting"`
	ActiveSessions       int     `json:"active_sessions"`
	TotalRequests        int64   `json:"total_requests"`
	TotalErrors          int64   `json:"total_errors"`
	EstimatedWaitSeconds float64 `json:"estimated_wait_seconds"`
	IsFull               bool    `json:"is_full"`
}

// KeyView is one entry of GET /v1/keys.
type KeyView struct {
	RPM *ratelimit.Usage `json:"rpm,omitempty"`
	keypool.CredentialState
	Circuit     string `json:"circuit"`
	CoolingDown bool   `json:"cooling_down"`
}

// SessionView is the body of GET /v1/sessions/{user}.
type SessionView struct {
	CreatedAt  time.Time  `json:"created_at"`
	LeasedAt   *time.Time `json:"leased_at,omitempty"`
	UserID     string     `json:"user_id"`
	Credential string     `json:"credential,omitempty"`
}

// Status builds the occupancy report. Busy and free counts come from the
// gate, which in file-lock mode also sees keys held by other processes.
func (h *Handler) Status() StatusResponse {
	gs := h.Gate.Status()
	ps := h.Pool.Stats()
	return StatusResponse{
		Mode:                 gs.Mode,
		CurrentKey:           h.Rotator.Current(),
		TotalKeys:            gs.Total,
		BusyKeys:             gs.Busy,
		FreeKeys:             gs.Free,
		CoolingKeys:          ps.CoolingKeys,
		Waiting:              gs.Waiting,
		ActiveSessions:       h.Users.ActiveCount(),
		TotalRequests:        ps.TotalRequests,
		TotalErrors:          ps.TotalErrors,
		EstimatedWaitSeconds: gate.EstimateWait(gs).Seconds(),
		IsFull:               gs.IsFull,
	}
}

// Keys lists every credential without its secret.
func (h *Handler) Keys() []KeyView {
	snap := h.Pool.Snapshot()
	var circuits map[string]health.State
	if h.Health != nil {
		circuits = h.Health.AllStates()
	}
	return lo.Map(snap.Credentials, func(c keypool.CredentialState, _ int) KeyView {
		circuit := "disabled"
		if h.Health != nil {
			circuit = lo.ValueOr(circuits, c.Name, health.StateClosed).String()
		}
		view := KeyView{
			CredentialState: c,
			Circuit:         circuit,
			CoolingDown:     c.CoolingDown(snap.TakenAt),
		}
		if usage, ok := h.Pool.Usage(c.Name); ok {
			view.RPM = &usage
		}
		return view
	})
}

func (h *Handler) hints() retryHints {
	cfg := h.Runtime.Get()
	return retryHints{
		overloaded: max(gate.EstimateWait(h.Gate.Status()), cfg.Gate.GetEffectivePollInterval()),
		rateLimit:  cfg.Rotation.GetEffectiveCooldown(),
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Status())
}

func (h *Handler) handleKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Keys())
}

// decodeChat reads a chat request. The body is kept as sent and forwarded
// upstream with only unset defaults filled in.
func decodeChat(w http.ResponseWriter, r *http.Request) (*chat.Request, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			WriteError(w, http.StatusRequestEntityTooLarge, TypeTooLarge,
				"request body exceeds the maximum allowed size")
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, TypeInvalidRequest, "failed to read request body")
		return nil, false
	}

	req, err := chat.ParseRequest(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, TypeInvalidRequest, err.Error())
		return nil, false
	}
	return req, true
}

func (h *Handler) handleCompletions(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}
	resp, err := h.Rotator.Call(r.Context(), req)
	if err != nil {
		writeCallError(r.Context(), w, err, h.hints())
		return
	}
	writeRaw(w, http.StatusOK, resp.Body)
}

func (h *Handler) handleSessionChat(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}

	ctx := zerolog.Ctx(r.Context()).With().Str("user_id", user).Logger().WithContext(r.Context())
	resp, err := h.Sessions.Chat(ctx, user, req)
	if err != nil {
		writeCallError(ctx, w, err, h.hints())
		return
	}
	writeRaw(w, http.StatusOK, resp.Body)
}

func (h *Handler) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	entry, ok := h.Users.Get(user)
	if !ok {
		WriteError(w, http.StatusNotFound, TypeNotFound, "no active request for user "+user)
		return
	}
	view := SessionView{
		CreatedAt:  entry.CreatedAt,
		UserID:     entry.UserID,
		Credential: entry.Credential,
	}
	if !entry.BoundAt.IsZero() {
		view.LeasedAt = &entry.BoundAt
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if !h.Users.Cancel(user) {
		WriteError(w, http.StatusNotFound, TypeNotFound, "no active request for user "+user)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("user_id", user).Msg("request cancelled by client")
	w.WriteHeader(http.StatusNoContent)
}

// Routes builds the HTTP handler. /health is open; everything under /v1
// passes auth, the concurrency limit and the body limit.
func (h *Handler) Routes(base zerolog.Logger, limiter *ConcurrencyLimiter) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/status", h.handleStatus)
	api.HandleFunc("GET /v1/keys", h.handleKeys)
	api.HandleFunc("POST /v1/chat/completions", h.handleCompletions)
	api.HandleFunc("POST /v1/sessions/{user}/chat", h.handleSessionChat)
	api.HandleFunc("GET /v1/sessions/{user}", h.handleSessionGet)
	api.HandleFunc("DELETE /v1/sessions/{user}", h.handleSessionCancel)

	guarded := Chain(api,
		LiveAuthMiddleware(h.Runtime),
		ConcurrencyMiddleware(limiter),
		MaxBodyBytesMiddleware(func() int64 {
			return h.Runtime.Get().Server.GetEffectiveMaxBodyBytes()
		}),
	)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", h.handleHealth)
	root.Handle("/v1/", guarded)

	return Chain(root,
		RequestIDMiddleware(base),
		LoggingMiddleware(func() config.DebugOptions {
			return h.Runtime.Get().Logging.DebugOptions
		}),
	)
}
