package driven

import "context"

// GenerationRequest is the opaque input to the content-generation
// collaborator. The ledger never inspects prompt content; it only meters it.
type GenerationRequest struct {
	Field   string
	Current string
	Context string
}

// ContentGenerator defines the driven port for the external content-generation
// service. Implementations are request/response black boxes.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
