package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
	"github.com/careerforge/creditledger/internal/observability"
)

// GenerateRequest couples one metered spend with one content-generation call.
type GenerateRequest struct {
	Principal      string
	Amount         int64
	Kind           model.ActivityKind
	Title          string
	Metadata       map[string]string
	IdempotencyKey string
	Generation     driven.GenerationRequest
}

// GenerateService orchestrates spend plus generation with the debit-first
// policy: credits are debited before the generator runs, and a compensating
// refund (a distinct audit record of kind refund) is issued if generation
// fails. The ledger itself stays generation-agnostic; this service only
// composes its spend and grant primitives.
type GenerateService struct {
	spender   *SpendService
	generator driven.ContentGenerator
	logger    *slog.Logger
}

// NewGenerateService creates a GenerateService.
func NewGenerateService(spender *SpendService, generator driven.ContentGenerator) *GenerateService {
	return &GenerateService{
		spender:   spender,
		generator: generator,
		logger:    slog.Default(),
	}
}

// Generate debits first, generates second. On generation failure the debit is
// reversed by an equal refund keyed off the original idempotency key, so a
// retried request cannot refund twice.
func (s *GenerateService) Generate(ctx context.Context, req GenerateRequest) (string, model.SpendReceipt, error) {
	receipt, err := s.spender.Spend(ctx, model.SpendRequest{
		Principal:      req.Principal,
		Amount:         req.Amount,
		Kind:           req.Kind,
		Title:          req.Title,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", model.SpendReceipt{}, err
	}

	text, genErr := s.generator.Generate(ctx, req.Generation)
	if genErr == nil {
		return text, receipt, nil
	}

	s.logger.Warn("content generation failed, issuing refund",
		"principal", req.Principal, "amount", req.Amount, "error", genErr)

	refundKey := req.IdempotencyKey + ":refund"
	refund, refundErr := s.spender.Grant(ctx, req.Principal, req.Amount,
		model.KindRefund, "Refund: "+req.Title, refundKey)
	if refundErr != nil {
		// The debit is committed and the refund did not land. Surface both so
		// the caller can retry the refund with the same key.
		s.logger.Error("compensating refund failed",
			"principal", req.Principal, "refund_key", refundKey, "error", refundErr)
		return "", receipt, fmt.Errorf("generation failed (%v); refund failed: %w", genErr, refundErr)
	}
	observability.RefundsIssued.Inc()

	return "", refund, fmt.Errorf("content generation failed: %w", genErr)
}
