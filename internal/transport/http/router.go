package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"quiz-leaderboard-service/internal/domain"
)

// LeaderboardService is the engine surface the transport needs.
type LeaderboardService interface {
	CheckQualification(ctx context.Context, candidate domain.Entry) (domain.CheckResult, error)
	Commit(ctx context.Context, candidate domain.Entry) (domain.CommitResult, error)
	GetPartitionLeaderboard(ctx context.Context, bookID string) ([]domain.Slot, error)
	GetAllLeaderboards(ctx context.Context, bookIDs []string) (map[string][]domain.Slot, error)
	Subscribe(ctx context.Context, bookID string) (<-chan domain.Leaderboard, func(), error)
}

// RouterConfig carries optional router wiring.
type RouterConfig struct {
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter wires the REST and websocket endpoints.
func NewRouter(service LeaderboardService, logger *zap.Logger, cfg RouterConfig) http.Handler {
	h := NewHandler(service, logger)
	ws := NewWSHandler(service, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Route("/books/{bookID}", func(r chi.Router) {
		r.Post("/check", h.CheckQualification)
		r.Post("/entries", h.Commit)
		r.Get("/leaderboard", h.GetLeaderboard)
	})
	r.Get("/leaderboards", h.GetLeaderboards)
	r.Get("/ws", ws.ServeWS)
	return r
}
