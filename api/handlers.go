package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/service"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// Handlers groups all HTTP handler methods and their dependencies
type Handlers struct {
	queries   SettlementQueries
	batch     BatchTrigger
	batchRuns BatchRunLister
	payouts   service.PayoutRunner
	db        Pinger
}

const (
	defaultBatchRunLimit = 20
	maxBatchRunLimit     = 100
)

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode HTTP response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entities.ErrSettlementNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, entities.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, entities.ErrInvalidPeriod),
		errors.Is(err, entities.ErrInvalidStatus),
		errors.Is(err, entities.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entities.ErrRetryCeilingExceeded),
		errors.Is(err, entities.ErrAlreadyCompleted),
		errors.Is(err, entities.ErrInvalidTransition),
		errors.Is(err, entities.ErrCooldownActive),
		errors.Is(err, entities.ErrSettlementClosed),
		errors.Is(err, entities.ErrPeriodNotElapsed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err,
		}).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Creator-facing ---

func (h *Handlers) ListCreatorSettlements(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := parseIDParam(r, "creatorID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator id")
		return
	}

	views, err := h.queries.ListForCreator(r.Context(), creatorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]creatorSettlementResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toCreatorSettlement(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": items})
}

func (h *Handlers) GetCreatorSettlement(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := parseIDParam(r, "creatorID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator id")
		return
	}
	settlementID, ok := parseIDParam(r, "settlementID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid settlement id")
		return
	}

	view, err := h.queries.GetForCreator(r.Context(), creatorID, settlementID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, creatorSettlementDetailResponse{
		creatorSettlementResponse: toCreatorSettlement(&view.CreatorSettlementView),
		Details:                   toDetails(view.Details),
		Reversals:                 toReversals(view.Reversals),
	})
}

// --- Operator-facing ---

func (h *Handlers) SearchSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := entities.SettlementFilter{
		CreatorName: q.Get("creatorName"),
		Period:      q.Get("period"),
		Page:        min(parseIntDefault(q.Get("page"), 0), entities.MaxPage),
		Size:        parseIntDefault(q.Get("size"), entities.DefaultPageSize),
	}
	if raw := q.Get("creatorId"); raw != "" {
		creatorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid creatorId")
			return
		}
		filter.CreatorID = &creatorID
	}
	if raw := q.Get("status"); raw != "" {
		status := entities.SettlementStatus(raw)
		filter.Status = &status
	}

	page, err := h.queries.Search(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page))
}

func (h *Handlers) GetSettlementDetail(w http.ResponseWriter, r *http.Request) {
	settlementID, ok := parseIDParam(r, "settlementID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid settlement id")
		return
	}

	detail, err := h.queries.GetDetail(r.Context(), settlementID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, adminSettlementDetailResponse{
		adminSettlementResponse: toAdminSettlement(detail.Settlement, detail.CreatorName),
		Details:                 toDetails(detail.Details),
		Reversals:               toReversals(detail.Reversals),
	})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.GetStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStats(stats))
}

func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		writeError(w, http.StatusBadRequest, "period is required")
		return
	}

	summary, err := h.batch.Run(r.Context(), period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchRun(summary))
}

func (h *Handlers) ListBatchRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), defaultBatchRunLimit)
	if limit == 0 {
		limit = defaultBatchRunLimit
	}
	if limit > maxBatchRunLimit {
		limit = maxBatchRunLimit
	}

	runs, err := h.batchRuns.ListRecent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]batchRunRecordResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, toBatchRunRecord(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": items})
}

func (h *Handlers) RetryPayout(w http.ResponseWriter, r *http.Request) {
	settlementID, ok := parseIDParam(r, "settlementID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid settlement id")
		return
	}

	outcome, err := h.payouts.Retry(r.Context(), settlementID, service.RetryModeManual)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// A rail rejection is still a completed request: the settlement records the failure
	writeJSON(w, http.StatusOK, toPayoutOutcome(outcome))
}
