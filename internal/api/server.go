// Package api provides the gitquest HTTP server: the per-user engagement
// API under /api/v1 and the provider webhook receivers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/gitquest/gitquest/internal/app/engagement"
	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/health"
	"github.com/gitquest/gitquest/internal/infra/kv"
)

// maxBodyBytes caps request bodies, webhook payloads included.
const maxBodyBytes = 5 << 20

// Options configures the HTTP surface.
type Options struct {
	Version              string
	CORSOrigins          []string
	WebhookRatePerMinute int
	// AchievementCheckInterval is the minimum gap between two manual
	// achievement checks of one user. Zero disables throttling.
	AchievementCheckInterval time.Duration
	Metrics                  bool
}

// Server is the gitquest HTTP API server.
type Server struct {
	engine  *engagement.Engine
	cache   kv.Store
	checker *health.Checker
	opts    Options
	log     logrus.FieldLogger

	refreshes singleflight.Group
}

// NewServer creates a new API server. cache and checker may be nil.
func NewServer(e *engagement.Engine, cache kv.Store, checker *health.Checker, opts Options, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		engine:  e,
		cache:   cache,
		checker: checker,
		opts:    opts,
		log:     log.WithField("component", "api"),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Get("/health", s.handleHealth)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.opts.Version})
	})
	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/xp", s.handleGetXP)
		r.Get("/stats", s.handleStats)

		r.Get("/achievements", s.handleAchievements)
		r.Post("/achievements/check", s.handleCheckAchievements)

		r.Get("/challenges", s.handleChallenges)
		r.Get("/challenges/history", s.handleChallengeHistory)
		r.Post("/challenges/{id}/claim", s.handleClaimChallenge)

		r.Get("/commits", s.handleListCommits)
		r.Post("/commits", s.handleSyncCommits)
		r.Get("/commits/calendar", s.handleCommitCalendar)
		r.Get("/insights", s.handleInsights)

		r.Get("/repos", s.handleListRepos)
		r.Post("/repos", s.handleTrackRepo)
		r.Delete("/repos/{id}", s.handleUntrackRepo)
		r.Post("/accounts", s.handleLinkAccount)
		r.Delete("/accounts/{provider}/{accountID}", s.handleUnlinkAccount)
	})

	r.Route("/webhooks", func(r chi.Router) {
		if s.opts.WebhookRatePerMinute > 0 {
			r.Use(rateLimitMiddleware(s.opts.WebhookRatePerMinute))
		}
		r.Post("/github", s.handleGitHubWebhook)
		r.Post("/gitlab", s.handleGitLabWebhook)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownRepo):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyUnlocked):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError reports an engine failure. Internal errors are logged
// and hidden behind a generic message.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.WithError(err).
			WithField("path", r.URL.Path).
			WithField("request_id", middleware.GetReqID(r.Context())).
			Error("Request failed")
		writeError(w, code, "action failed, try again")
		return
	}
	writeError(w, code, err.Error())
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
