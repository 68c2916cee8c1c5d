package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":{"kind":"internal","message":"internal server error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes the standard error envelope with the given status code.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorEnvelope{OK: false, Error: errorBody{Kind: kind, Message: message}})
}

// writeLedgerError maps a typed ledger error onto its HTTP representation.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, driven.ErrValidation):
		writeError(w, http.StatusBadRequest, "ValidationError", err.Error())
	case errors.Is(err, driven.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "InsufficientFunds", "insufficient credits")
	case errors.Is(err, driven.ErrTransient):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "TransientError", "ledger temporarily unavailable, retry with the same idempotency key")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// isLedgerError reports whether err carries one of the typed ledger sentinels
// and therefore has a specific HTTP mapping.
func isLedgerError(err error) bool {
	return errors.Is(err, driven.ErrValidation) ||
		errors.Is(err, driven.ErrInsufficientFunds) ||
		errors.Is(err, driven.ErrTransient)
}

// isRejection reports whether err is an expected client-side rejection rather
// than a server fault.
func isRejection(err error) bool {
	return errors.Is(err, driven.ErrValidation) || errors.Is(err, driven.ErrInsufficientFunds)
}

// errorEnvelope is the standard error response body.
type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SpendRequestBody is the JSON body accepted by the spend endpoint. Score is
// optional and recorded on the audit entry, e.g. a mock interview's overall
// score.
type SpendRequestBody struct {
	Amount         int64             `json:"amount"`
	ActivityKind   string            `json:"activity_kind"`
	Title          string            `json:"title"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"idempotency_key"`
	Score          *float64          `json:"score,omitempty"`
}

// GrantRequestBody is the JSON body accepted by the administrative grant endpoint.
type GrantRequestBody struct {
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// GenerateRequestBody is the JSON body accepted by the metered generation endpoint.
type GenerateRequestBody struct {
	Amount         int64             `json:"amount"`
	ActivityKind   string            `json:"activity_kind"`
	Title          string            `json:"title"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"idempotency_key"`
	Field          string            `json:"field"`
	CurrentText    string            `json:"current_text"`
	Context        string            `json:"context"`
}

// SpendResponse is the JSON representation of a committed spend.
type SpendResponse struct {
	OK         bool   `json:"ok"`
	Remaining  int64  `json:"remaining"`
	ActivityID string `json:"activity_id"`
	Deduped    bool   `json:"deduped"`
}

// BalanceResponse is the JSON representation of a principal's credit balance.
type BalanceResponse struct {
	Principal string `json:"principal"`
	Remaining int64  `json:"remaining"`
	UpdatedAt string `json:"updated_at"`
}

// ActivityResponse is the JSON representation of one audit record.
type ActivityResponse struct {
	ID           string            `json:"id"`
	ActivityKind string            `json:"activity_kind"`
	Title        string            `json:"title"`
	AmountSpent  int64             `json:"amount_spent"`
	Score        *float64          `json:"score,omitempty"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    string            `json:"created_at"`
}

// ActivityPageResponse is one page of audit records, newest first.
type ActivityPageResponse struct {
	Activities []ActivityResponse `json:"activities"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// StatsResponse is the administrative usage aggregate.
type StatsResponse struct {
	TotalPrincipals  int64 `json:"total_principals"`
	ActivePrincipals int64 `json:"active_principals"`
	TotalAmountSpent int64 `json:"total_amount_spent"`
}

// GenerateResponse is the JSON representation of a metered generation result.
type GenerateResponse struct {
	OK        bool   `json:"ok"`
	Text      string `json:"text"`
	Remaining int64  `json:"remaining"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toSpendResponse(receipt model.SpendReceipt) SpendResponse {
	return SpendResponse{
		OK:         true,
		Remaining:  receipt.Remaining,
		ActivityID: receipt.ActivityID,
		Deduped:    receipt.Deduped,
	}
}

func toBalanceResponse(bal model.CreditBalance) BalanceResponse {
	return BalanceResponse{
		Principal: bal.Principal,
		Remaining: bal.Remaining,
		UpdatedAt: bal.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toActivityResponse(rec model.ActivityRecord) ActivityResponse {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return ActivityResponse{
		ID:           rec.ID,
		ActivityKind: string(rec.Kind),
		Title:        rec.Title,
		AmountSpent:  rec.AmountSpent,
		Score:        rec.Score,
		Metadata:     metadata,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}
