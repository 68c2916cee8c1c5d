package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careerforge/creditledger/internal/application"
	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// Handler is the HTTP driving adapter that serves the ledger REST API.
type Handler struct {
	spendSvc    *application.SpendService
	generateSvc *application.GenerateService
	activities  driven.ActivityStore
	stats       driven.StatsStore
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. generateSvc may
// be nil when no content generator is configured; the generate endpoint is
// then not registered.
func NewHandler(
	spendSvc *application.SpendService,
	generateSvc *application.GenerateService,
	activities driven.ActivityStore,
	stats driven.StatsStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		spendSvc:    spendSvc,
		generateSvc: generateSvc,
		activities:  activities,
		stats:       stats,
		logger:      logger,
	}
}

// NewRouter creates the chi router with all routes registered and wrapped with
// logging and recovery middleware.
func NewRouter(h *Handler, logger *slog.Logger, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(loggingMiddleware(logger))
	r.Use(recoveryMiddleware(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/principals/{principal}", func(r chi.Router) {
			r.Post("/spend", h.Spend)
			r.Post("/grants", h.Grant)
			r.Get("/balance", h.Balance)
			r.Get("/activity", h.ListActivity)
			if h.generateSvc != nil {
				r.Post("/generate", h.Generate)
			}
		})
		r.Get("/admin/stats", h.Stats)
		r.Get("/health", h.Health)
	})

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// Spend debits credits from a principal and records the audit entry.
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	var body SpendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}

	receipt, err := h.spendSvc.Spend(r.Context(), model.SpendRequest{
		Principal:      principal,
		Amount:         body.Amount,
		Kind:           model.ActivityKind(body.ActivityKind),
		Title:          body.Title,
		Metadata:       body.Metadata,
		IdempotencyKey: body.IdempotencyKey,
		Score:          body.Score,
	})
	if err != nil {
		h.logSpendFailure("spend failed", principal, err)
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSpendResponse(receipt))
}

// Grant credits a principal, recording an admin_grant audit entry.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	var body GrantRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}

	title := body.Reason
	if title == "" {
		title = "Credit grant"
	}

	receipt, err := h.spendSvc.Grant(r.Context(), principal, body.Amount,
		model.KindAdminGrant, title, body.IdempotencyKey)
	if err != nil {
		h.logSpendFailure("grant failed", principal, err)
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSpendResponse(receipt))
}

// Balance returns the principal's current balance. With ?refresh=1 the cache
// is bypassed and the authoritative ledger row is read.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	forceRefresh := r.URL.Query().Get("refresh") == "1"

	bal, err := h.spendSvc.Balance(r.Context(), principal, forceRefresh)
	if err != nil {
		h.logger.Error("failed to read balance", "principal", principal, "error", err)
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceResponse(bal))
}

// ListActivity returns one page of the principal's audit records, newest first.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "ValidationError", "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	records, next, err := h.activities.List(r.Context(), principal, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.logger.Error("failed to list activity", "principal", principal, "error", err)
		writeLedgerError(w, err)
		return
	}

	resp := ActivityPageResponse{
		Activities: make([]ActivityResponse, 0, len(records)),
		NextCursor: next,
	}
	for _, rec := range records {
		resp.Activities = append(resp.Activities, toActivityResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Generate performs a metered content generation: debit first, generate
// second, automatic refund on generation failure.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	var body GenerateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}

	text, receipt, err := h.generateSvc.Generate(r.Context(), application.GenerateRequest{
		Principal:      principal,
		Amount:         body.Amount,
		Kind:           model.ActivityKind(body.ActivityKind),
		Title:          body.Title,
		Metadata:       body.Metadata,
		IdempotencyKey: body.IdempotencyKey,
		Generation: driven.GenerationRequest{
			Field:   body.Field,
			Current: body.CurrentText,
			Context: body.Context,
		},
	})
	if err != nil {
		if isLedgerError(err) {
			h.logSpendFailure("metered generation rejected", principal, err)
			writeLedgerError(w, err)
			return
		}
		h.logger.Error("content generation failed", "principal", principal, "error", err)
		writeError(w, http.StatusBadGateway, "GenerationFailed", "content generation failed; credits were refunded")
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		OK:        true,
		Text:      text,
		Remaining: receipt.Remaining,
	})
}

// Stats returns the administrative usage aggregate across all principals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.AggregateStats(r.Context())
	if err != nil {
		h.logger.Error("failed to aggregate stats", "error", err)
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalPrincipals:  stats.TotalPrincipals,
		ActivePrincipals: stats.ActivePrincipals,
		TotalAmountSpent: stats.TotalAmountSpent,
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// logSpendFailure logs at a level matching the failure class: expected
// rejections (validation, insufficient funds) at debug, everything else as
// errors.
func (h *Handler) logSpendFailure(msg, principal string, err error) {
	if isRejection(err) {
		h.logger.Debug(msg, "principal", principal, "error", err)
		return
	}
	h.logger.Error(msg, "principal", principal, "error", err)
}
