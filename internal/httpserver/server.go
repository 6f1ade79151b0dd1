// internal/httpserver/server.go
//
// HTTP server wiring for the escape room backend.
// Responsibilities:
//   - Router + middleware (access log, JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/metrics", leaderboards, toolkit.
//   - Game endpoints (optional auth): /game/*.
//   - Daily room endpoints (optional auth): mounted under /daily.
//   - Auth + profile endpoints: /auth/*, /stats/me, /rooms/mine.
//
// Notes:
//   - Guests play under an anonymous id cookie; sessions are only visible to
//     the user or anonymous id that created them.
//   - Room history and stats are written best effort: a database failure is
//     logged and never fails the click that caused it.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/escaperoom/internal/config"
	"github.com/robalobadob/escaperoom/internal/daily"
	"github.com/robalobadob/escaperoom/internal/game"
	"github.com/robalobadob/escaperoom/internal/records"
	"github.com/robalobadob/escaperoom/internal/scene"
	"github.com/robalobadob/escaperoom/internal/store"
	"github.com/robalobadob/escaperoom/internal/themes"
	"github.com/robalobadob/escaperoom/internal/toolkit"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Config   config.Config
	Sessions store.Store
	Records  *records.Store
	Daily    *daily.Store
	Scenes   *scene.Generator
	Images   *scene.Cache
	Catalog  *themes.Catalog
	Toolkit  *toolkit.Toolkit // nil disables /toolkit generation
	Placer   game.Placer      // classic rooms; defaults to a random placer
	Now      func() time.Time
}

// Server bundles router and dependencies.
type Server struct {
	r   *chi.Mux
	cfg config.Config
	d   Deps

	dailyMu sync.Mutex // daily scene generation
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	if d.Placer == nil {
		d.Placer = game.NewRandomPlacer()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Images == nil {
		d.Images = scene.NewCache(0)
	}
	s := &Server{
		r:   chi.NewRouter(),
		cfg: d.Config,
		d:   d,
	}

	timeout := d.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(hlog.NewHandler(log.Logger))
	s.r.Use(hlog.AccessHandler(accessLog))
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(timeout)) // image generation is slow
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "escaperoom-go",
			"endpoints": []string{"/health", "POST /game/new", "POST /game/click", "/daily/*", "/toolkit/*", "/auth/*"},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		t, st := d.Catalog.Stats()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "themes": t, "styles": st})
	})
	s.r.Handle("/metrics", promhttp.Handler())

	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		s.mountGame(r)
		s.mountDaily(r)
	})
	s.r.Get("/leaderboard", s.handleLeaderboard)
	s.mountToolkit(s.r)
	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

func accessLog(r *http.Request, status, size int, d time.Duration) {
	hlog.FromRequest(r).Info().
		Str("req_id", chimw.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("took", d).
		Msg("request")
}

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ responses ----------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{Error: code})
}

var errNotOwner = errors.New("session belongs to someone else")

// writeErr maps domain errors to status codes.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "server_error"
		msg    string
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, records.ErrNotFound), errors.Is(err, errNotOwner):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, game.ErrInvalidInput):
		status, code, msg = http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, game.ErrInvalidConfiguration):
		status, code, msg = http.StatusBadRequest, "invalid_configuration", err.Error()
	case errors.Is(err, game.ErrRestartRequired):
		status, code = http.StatusConflict, "restart_required"
	case errors.Is(err, errDailySingleRoom):
		status, code = http.StatusConflict, "daily_single_room"
	case errors.Is(err, errGeneration):
		status, code, msg = http.StatusBadGateway, "generation_failed", err.Error()
	}
	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
