package subagent

import (
	"context"
	"fmt"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
	llmx "github.com/knearme/portfolio-agent/agent/llm"
	promptx "github.com/knearme/portfolio-agent/agent/prompt"
)

type registryImpl struct {
	extractor contractx.Extractor
	writer    contractx.ContentWriter
	composer  contractx.LayoutComposer
}

func (r *registryImpl) Extractor() contractx.Extractor           { return r.extractor }
func (r *registryImpl) ContentWriter() contractx.ContentWriter   { return r.writer }
func (r *registryImpl) LayoutComposer() contractx.LayoutComposer { return r.composer }

// NewRegistry builds the three sub-agents, each on its own chat model so
// model and temperature can be tuned per agent.
func NewRegistry(ctx context.Context, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()
	if prompts.Extractor == "" || prompts.Writer == "" || prompts.Composer == "" {
		return nil, fmt.Errorf("%w: sub-agent prompt set is incomplete", contractx.ErrPromptMissing)
	}

	extractorCfg := cfg.OpenRouterFor(contractx.AgentKindExtractor)
	extractorModel, err := extractorCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create extractor model: %v", contractx.ErrModelInvoke, err)
	}
	writerCfg := cfg.OpenRouterFor(contractx.AgentKindWriter)
	writerModel, err := writerCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create writer model: %v", contractx.ErrModelInvoke, err)
	}
	composerCfg := cfg.OpenRouterFor(contractx.AgentKindComposer)
	composerModel, err := composerCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create composer model: %v", contractx.ErrModelInvoke, err)
	}

	extractor, err := newExtractor(ctx, extractorModel, prompts.Extractor)
	if err != nil {
		return nil, err
	}
	writer, err := newWriter(ctx, writerModel, prompts.Writer)
	if err != nil {
		return nil, err
	}
	composer, err := newComposer(ctx, composerModel, prompts.Composer)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		extractor: extractor,
		writer:    writer,
		composer:  composer,
	}, nil
}
