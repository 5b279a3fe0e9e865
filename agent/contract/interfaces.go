package contract

import "context"

type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (ExtractionResponse, error)
}

type ContentWriter interface {
	Write(ctx context.Context, req ContentRequest) (ContentResponse, error)
}

type LayoutComposer interface {
	Compose(ctx context.Context, req LayoutRequest) (LayoutResponse, error)
}

type Registry interface {
	Extractor() Extractor
	ContentWriter() ContentWriter
	LayoutComposer() LayoutComposer
}

// Orchestrator is the phase-aware dispatcher the tool executors call into.
type Orchestrator interface {
	Orchestrate(ctx context.Context, in OrchestrateInput) OrchestrateResult
}
