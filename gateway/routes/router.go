package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vatchain/core/sequencer"
	"vatchain/gateway/middleware"
	"vatchain/indexer"
)

type Config struct {
	Sequencer *sequencer.Sequencer
	// Indexer serves receipt queries; nil disables GET /v1/receipts.
	Indexer       *indexer.Indexer
	Logger        *slog.Logger
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// Route keys used for rate limits and metrics.
const (
	RouteReads = "reads"
	RouteTx    = "tx"
)

// New builds the HTTP API. Reads are public; transaction submission requires
// an authenticated caller.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	api := &ledgerRoutes{
		seq:     cfg.Sequencer,
		indexer: cfg.Indexer,
		logger:  cfg.Logger,
		origins: originPatterns(cfg.CORS.AllowedOrigins),
	}
	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(reads chi.Router) {
			if cfg.RateLimiter != nil {
				reads.Use(cfg.RateLimiter.Middleware(RouteReads))
			}
			if cfg.Observability != nil {
				reads.Use(cfg.Observability.Middleware(RouteReads))
			}
			api.mountReads(reads)
		})
		v1.Group(func(writes chi.Router) {
			if cfg.RateLimiter != nil {
				writes.Use(cfg.RateLimiter.Middleware(RouteTx))
			}
			if cfg.Authenticator != nil {
				writes.Use(cfg.Authenticator.Middleware())
			}
			if cfg.Observability != nil {
				writes.Use(cfg.Observability.Middleware(RouteTx))
			}
			writes.Post("/tx", api.submit)
		})
	})
	return r
}
