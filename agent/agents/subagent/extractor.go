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

// extractorImpl reconciles a contractor's free-text message against the
// current project state and returns a partial update.
type extractorImpl struct {
	runner *structuredRunner[extractorLLMOutput]
}

type extractorLLMOutput struct {
	ProjectType        string   `json:"project_type,omitempty"`
	City               string   `json:"city,omitempty"`
	State              string   `json:"state,omitempty"`
	Title              string   `json:"title,omitempty"`
	CustomerProblem    string   `json:"customer_problem,omitempty"`
	SolutionApproach   string   `json:"solution_approach,omitempty"`
	Duration           string   `json:"duration,omitempty"`
	ProudOf            string   `json:"proud_of,omitempty"`
	Materials          []string `json:"materials,omitempty"`
	Techniques         []string `json:"techniques,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	NeedsClarification []string `json:"needs_clarification,omitempty"`
	ClarifiedFields    []string `json:"clarified_fields,omitempty"`
}

func newExtractor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*extractorImpl, error) {
	runner, err := compileStructuredLLMGraph[extractorLLMOutput](ctx, chatModel, systemPrompt, "subagent.extractor")
	if err != nil {
		return nil, fmt.Errorf("%w: compile extractor graph: %v", contractx.ErrModelInvoke, err)
	}
	return &extractorImpl{runner: runner}, nil
}

func (e *extractorImpl) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return contractx.ExtractionResponse{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"message":       req.Message,
		"known_state":   req.State,
		"still_missing": missingFields(req.State),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.ExtractionResponse{}, fmt.Errorf("%w: marshal extractor payload: %v", contractx.ErrValidation, err)
	}

	out, err := e.runner.invoke(ctx, string(input))
	if err != nil {
		return contractx.ExtractionResponse{}, fmt.Errorf("%w: extractor invoke: %v", contractx.ErrModelInvoke, err)
	}

	return contractx.ExtractionResponse{
		Patch: statex.ProjectState{
			ProjectType:      out.ProjectType,
			City:             out.City,
			State:            out.State,
			Title:            out.Title,
			CustomerProblem:  out.CustomerProblem,
			SolutionApproach: out.SolutionApproach,
			Duration:         out.Duration,
			ProudOf:          out.ProudOf,
			Materials:        out.Materials,
			Techniques:       out.Techniques,
			Tags:             out.Tags,
		},
		NeedsClarification: out.NeedsClarification,
		ClarifiedFields:    out.ClarifiedFields,
	}, nil
}

// missingFields lists what extraction should still chase, so the model asks
// about gaps instead of re-confirming known facts.
func missingFields(st statex.ProjectState) []string {
	var missing []string
	if strings.TrimSpace(st.ProjectType) == "" {
		missing = append(missing, "project_type")
	}
	if strings.TrimSpace(st.CustomerProblem) == "" {
		missing = append(missing, "customer_problem")
	}
	if strings.TrimSpace(st.SolutionApproach) == "" {
		missing = append(missing, "solution_approach")
	}
	if len(st.Materials) < 2 && len(st.Techniques) < 2 {
		missing = append(missing, "materials_or_techniques")
	}
	if strings.TrimSpace(st.City) == "" {
		missing = append(missing, "city")
	}
	return missing
}
