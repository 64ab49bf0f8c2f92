package api

import (
	"context"
	"net/http"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// SettlementQueries serves the read side of the ledger
type SettlementQueries interface {
	ListForCreator(ctx context.Context, creatorID int64) ([]*service.CreatorSettlementView, error)
	GetForCreator(ctx context.Context, creatorID, settlementID int64) (*service.CreatorSettlementDetailView, error)
	Search(ctx context.Context, filter entities.SettlementFilter) (*entities.SettlementPage, error)
	GetDetail(ctx context.Context, settlementID int64) (*entities.SettlementWithDetails, error)
	GetStats(ctx context.Context) (*entities.SettlementStats, error)
}

// BatchTrigger runs a batch sweep for one period on demand
type BatchTrigger interface {
	Run(ctx context.Context, period string) (*service.BatchRunSummary, error)
}

// BatchRunLister reads the batch sweep audit trail
type BatchRunLister interface {
	ListRecent(ctx context.Context, limit int) ([]*entities.BatchRun, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups what the HTTP handlers need
type Dependencies struct {
	Queries   SettlementQueries
	Batch     BatchTrigger
	BatchRuns BatchRunLister
	Payouts   service.PayoutRunner
	DB        Pinger
}

// NewRouter creates the chi router with all API routes mounted
func NewRouter(deps Dependencies) http.Handler {
	h := &Handlers{
		queries:   deps.Queries,
		batch:     deps.Batch,
		batchRuns: deps.BatchRuns,
		payouts:   deps.Payouts,
		db:        deps.DB,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Creator-facing
		r.Get("/creators/{creatorID}/settlements", h.ListCreatorSettlements)
		r.Get("/creators/{creatorID}/settlements/{settlementID}", h.GetCreatorSettlement)

		// Operator-facing
		r.Route("/admin/settlements", func(r chi.Router) {
			r.Get("/", h.SearchSettlements)
			r.Get("/stats", h.GetStats)
			r.Post("/batch", h.RunBatch)
			r.Get("/batch-runs", h.ListBatchRuns)
			r.Get("/{settlementID}", h.GetSettlementDetail)
			r.Post("/{settlementID}/retry", h.RetryPayout)
		})
	})

	return r
}

// requestLogger logs one line per request through logrus
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
