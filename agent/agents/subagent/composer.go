package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
)

// composerImpl arranges the project's content and images into a declarative
// block layout the client's editor can render.
type composerImpl struct {
	runner *structuredRunner[composerLLMOutput]
}

type composerLLMOutput struct {
	Blocks []contractx.LayoutBlock `json:"blocks"`
}

var allowedBlockKinds = map[string]bool{
	"hero":         true,
	"narrative":    true,
	"before_after": true,
	"gallery":      true,
	"materials":    true,
	"cta":          true,
}

func newComposer(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*composerImpl, error) {
	runner, err := compileStructuredLLMGraph[composerLLMOutput](ctx, chatModel, systemPrompt, "subagent.composer")
	if err != nil {
		return nil, fmt.Errorf("%w: compile composer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &composerImpl{runner: runner}, nil
}

func (c *composerImpl) Compose(ctx context.Context, req contractx.LayoutRequest) (contractx.LayoutResponse, error) {
	payload := map[string]any{
		"project":  req.State,
		"feedback": req.Feedback,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.LayoutResponse{}, fmt.Errorf("%w: marshal composer payload: %v", contractx.ErrValidation, err)
	}

	out, err := c.runner.invoke(ctx, string(input))
	if err != nil {
		return contractx.LayoutResponse{}, fmt.Errorf("%w: composer invoke: %v", contractx.ErrModelInvoke, err)
	}

	if len(out.Blocks) == 0 {
		return contractx.LayoutResponse{}, fmt.Errorf("%w: composer returned no blocks", contractx.ErrSchemaViolation)
	}

	known := imageIDSet(req)
	for _, b := range out.Blocks {
		if !allowedBlockKinds[strings.TrimSpace(b.Kind)] {
			return contractx.LayoutResponse{}, fmt.Errorf("%w: unknown block kind %q", contractx.ErrSchemaViolation, b.Kind)
		}
		for _, id := range b.ImageIDs {
			if !known[id] {
				return contractx.LayoutResponse{}, fmt.Errorf("%w: block references unknown image %q", contractx.ErrSchemaViolation, id)
			}
		}
	}

	return contractx.LayoutResponse{Blocks: out.Blocks}, nil
}

func imageIDSet(req contractx.LayoutRequest) map[string]bool {
	ids := make(map[string]bool, len(req.State.Images))
	for _, img := range req.State.Images {
		ids[img.ID] = true
	}
	return ids
}
