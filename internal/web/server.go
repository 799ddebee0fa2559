package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jaminalder/cubic-tic-tac-toe/internal/app"
)

// Option customises NewServer.
type Option func(*handlers)

// WithLogger sets the logger used for request logs and handler errors.
func WithLogger(log *zap.Logger) Option {
	return func(h *handlers) { h.log = log }
}

// WithStats serves GET /stats from src.
func WithStats(src StatsSource) Option {
	return func(h *handlers) { h.stats = src }
}

// WithRelay mounts the scene relay at GET /ws.
func WithRelay(relay http.Handler) Option {
	return func(h *handlers) { h.relay = relay }
}

// NewServer wires routes and returns an http.Handler. Board fragments rendered here are also
// what the service broadcasts to SSE subscribers.
func NewServer(s *app.Service, opts ...Option) http.Handler {
	h := &handlers{svc: s, tpl: loadTemplates(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	s.SetRenderer(func(gs app.GameState) []byte { return h.renderBoard(gs, "") })

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/", h.index)
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/join", h.join)
		r.Post("/play", h.play)
		r.Post("/configure", h.configure)
		r.Post("/reset", h.reset)
		r.Post("/ai", h.setAI)
		r.Get("/state", h.state)
		r.Get("/events", h.events)
	})
	r.Get("/stats", h.statsJSON)
	if h.relay != nil {
		r.Handle("/ws", h.relay)
	}
	return r
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("requestID", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
