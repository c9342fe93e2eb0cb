package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	wsadapter "campkit/adapters/websocket"
	"campkit/analytics"
	"campkit/core"
	"campkit/engine"
	"campkit/enrollment"
	"campkit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// RateLimitTTL is how long an idle client's bucket is kept.
	RateLimitTTL time.Duration
	// RequestTimeout bounds each request; zero disables it.
	RequestTimeout time.Duration
	// MaxProofBytes caps multipart proof uploads.
	MaxProofBytes int64
	// WizardTTL expires idle wizard sessions.
	WizardTTL time.Duration
	// WizardLimit bounds live wizard sessions; the oldest is closed first.
	WizardLimit int
	// LeaderboardMax caps the n parameter of the leaderboard.
	LeaderboardMax int
	// AllowedOrigins restricts websocket upgrades.
	AllowedOrigins []string
}

const (
	defaultMaxProofBytes  = 10 << 20
	defaultWizardTTL      = 30 * time.Minute
	defaultWizardLimit    = 10000
	defaultLeaderboardMax = 100
)

func (o Options) withDefaults() Options {
	if o.MaxProofBytes <= 0 {
		o.MaxProofBytes = defaultMaxProofBytes
	}
	if o.WizardTTL <= 0 {
		o.WizardTTL = defaultWizardTTL
	}
	if o.WizardLimit <= 0 {
		o.WizardLimit = defaultWizardLimit
	}
	if o.LeaderboardMax <= 0 {
		o.LeaderboardMax = defaultLeaderboardMax
	}
	return o
}

// Deps are the services behind the routes. Progress, Enrollment.Repo and
// Manager are required; Hub and Stats enable /ws and /stats.
type Deps struct {
	Progress   *engine.ProgressService
	Enrollment enrollment.Deps
	Manager    *enrollment.Manager
	Hub        *realtime.Hub
	Stats      *analytics.Engagement
	Logger     *slog.Logger
}

var validate = validator.New()

type server struct {
	deps     Deps
	opts     Options
	logger   *slog.Logger
	sessions *sessions
}

// NewRouter builds the campkit REST API and WebSocket stream.
func NewRouter(deps Deps, opts Options) http.Handler {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Enrollment.Logger == nil {
		deps.Enrollment.Logger = logger
	}
	if deps.Enrollment.Events == nil && deps.Progress != nil {
		deps.Enrollment.Events = deps.Progress
	}
	s := &server{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		sessions: newSessions(opts.WizardLimit, opts.WizardTTL),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if opts.AllowCORSOrigin != "" {
		r.Use(corsMiddleware(opts.AllowCORSOrigin))
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		r.Use(newRateLimiter(opts.RateLimitRPM, opts.RateLimitBurst, opts.RateLimitTTL).middleware)
	}

	routes := func(r chi.Router) {
		r.Get("/healthz", s.healthCheck)
		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(apiKeyAuth(opts.APIKeys))
			}
			if deps.Hub != nil {
				r.Handle("/ws", wsadapter.Handler(deps.Hub, wsadapter.Options{AllowedOrigins: opts.AllowedOrigins, Logger: logger}))
			}
			r.Group(func(r chi.Router) {
				if opts.RequestTimeout > 0 {
					r.Use(middleware.Timeout(opts.RequestTimeout))
				}
				s.progressRoutes(r)
				s.tripRoutes(r)
				s.wizardRoutes(r)
				s.enrollmentRoutes(r)
				if deps.Stats != nil {
					r.Get("/stats", s.stats)
				}
			})
		})
	}
	if p := trimPrefix(opts.PathPrefix); p != "" {
		r.Route(p, routes)
	} else {
		routes(r)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})
	return r
}

// healthCheck verifies both stores answer.
func (s *server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"storage": "ok", "enrollments": "ok"}
	healthy := true
	if _, err := s.deps.Progress.GetProgress(ctx, "healthcheck_probe"); err != nil {
		checks["storage"] = "failed"
		healthy = false
	}
	if s.deps.Enrollment.Repo != nil {
		if _, err := s.deps.Enrollment.Repo.GetTrip(ctx, "healthcheck_probe"); err != nil && !errors.Is(err, enrollment.ErrTripNotFound) {
			checks["enrollments"] = "failed"
			healthy = false
		}
	}
	status := map[string]any{"status": "healthy", "checks": checks}
	code := http.StatusOK
	if !healthy {
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, status)
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	at := time.Now()
	if day := r.URL.Query().Get("day"); day != "" {
		parsed, err := time.Parse("2006-01-02", day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", "day must be YYYY-MM-DD", nil)
			return
		}
		at = parsed
	}
	top := queryInt(r, "top", 5)
	writeJSON(w, s.deps.Stats.Snapshot(at, top))
}

func trimPrefix(prefix string) string {
	if prefix == "" || prefix == "/" {
		return ""
	}
	if prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return prefix
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

// writeServiceError maps domain errors onto the error envelope.
func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *enrollment.ValidationError
	var ce *enrollment.CommitError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", ve.Message, map[string]string{"step": ve.Step.String()})
	case errors.Is(err, enrollment.ErrTripFull):
		writeError(w, http.StatusConflict, "trip_full", enrollment.UserMessage(err), nil)
	case errors.Is(err, enrollment.ErrTripNotFound):
		writeError(w, http.StatusNotFound, "trip_not_found", enrollment.UserMessage(err), nil)
	case errors.Is(err, enrollment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, enrollment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, enrollment.ErrWizardDone), errors.Is(err, enrollment.ErrWizardClosed):
		writeError(w, http.StatusConflict, "wizard_finished", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", enrollment.UserMessage(err), nil)
	case errors.As(err, &ce) && ce.Retryable:
		writeError(w, http.StatusServiceUnavailable, "commit_failed", enrollment.UserMessage(err), map[string]bool{"retryable": true})
	case errors.As(err, &ce):
		writeError(w, http.StatusConflict, "commit_failed", enrollment.UserMessage(err), map[string]bool{"retryable": false})
	case errors.Is(err, core.ErrEmptyUserID), errors.Is(err, core.ErrInvalidContext), errors.Is(err, core.ErrUnknownBadge):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	default:
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
