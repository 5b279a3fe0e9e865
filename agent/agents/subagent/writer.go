package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
	statex "github.com/knearme/portfolio-agent/agent/state"
)

// writerImpl generates portfolio page copy from a gathered project state.
type writerImpl struct {
	runner *structuredRunner[writerLLMOutput]
}

type writerLLMOutput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	SEOTitle       string   `json:"seo_title,omitempty"`
	SEODescription string   `json:"seo_description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

func newWriter(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*writerImpl, error) {
	runner, err := compileStructuredLLMGraph[writerLLMOutput](ctx, chatModel, systemPrompt, "subagent.writer")
	if err != nil {
		return nil, fmt.Errorf("%w: compile writer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &writerImpl{runner: runner}, nil
}

func (w *writerImpl) Write(ctx context.Context, req contractx.ContentRequest) (contractx.ContentResponse, error) {
	payload := map[string]any{
		"project":  req.State,
		"feedback": req.Feedback,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.ContentResponse{}, fmt.Errorf("%w: marshal writer payload: %v", contractx.ErrValidation, err)
	}

	out, err := w.runner.invoke(ctx, string(input))
	if err != nil {
		return contractx.ContentResponse{}, fmt.Errorf("%w: writer invoke: %v", contractx.ErrModelInvoke, err)
	}

	if strings.TrimSpace(out.Title) == "" || strings.TrimSpace(out.Description) == "" {
		return contractx.ContentResponse{}, fmt.Errorf("%w: writer must return title and description", contractx.ErrSchemaViolation)
	}

	return contractx.ContentResponse{
		Patch: statex.ProjectState{
			Title:          out.Title,
			Description:    out.Description,
			SEOTitle:       out.SEOTitle,
			SEODescription: out.SEODescription,
			Tags:           out.Tags,
		},
	}, nil
}
