// Package orchestrator routes one conversational turn to a specialized
// sub-agent based on the caller-supplied phase. It is a pure dispatch
// function per call, not a persistent state machine: continuity across turns
// lives entirely in the persisted ProjectState. Nothing here prevents a
// client from requesting the generating phase before gathering criteria are
// met; the quality gate is the only backstop for that gap.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
	qualityx "github.com/knearme/portfolio-agent/agent/quality"
	statex "github.com/knearme/portfolio-agent/agent/state"
)

var ErrInvalidPhase = errors.New("unknown orchestration phase")

type Orchestrator struct {
	subagents contractx.Registry

	graphRunner compose.Runnable[contractx.OrchestrateInput, contractx.OrchestrateResult]
}

func New(subagents contractx.Registry) (*Orchestrator, error) {
	if subagents == nil {
		return nil, errors.New("sub-agent registry is required")
	}

	o := &Orchestrator{subagents: subagents}
	runner, err := o.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = runner
	return o, nil
}

// Orchestrate dispatches one turn. Sub-agent failures are captured on the
// result so the surrounding conversation can keep going.
func (o *Orchestrator) Orchestrate(ctx context.Context, in contractx.OrchestrateInput) contractx.OrchestrateResult {
	out, err := o.graphRunner.Invoke(ctx, in)
	if err != nil {
		return contractx.OrchestrateResult{State: in.State, Err: err.Error()}
	}
	return out
}

func (o *Orchestrator) runExtraction(ctx context.Context, in contractx.OrchestrateInput) (contractx.OrchestrateResult, error) {
	resp, err := o.subagents.Extractor().Extract(ctx, contractx.ExtractionRequest{
		State:   in.State,
		Message: in.Message,
	})
	if err != nil {
		return contractx.OrchestrateResult{}, fmt.Errorf("extraction: %w", err)
	}

	st := statex.Merge(in.State, resp.Patch)
	st.NeedsClarification = resp.NeedsClarification
	st.ClarifiedFields = resp.ClarifiedFields

	return contractx.OrchestrateResult{
		State:   st,
		Message: extractionMessage(st),
	}, nil
}

func (o *Orchestrator) runGeneration(ctx context.Context, in contractx.OrchestrateInput) (contractx.OrchestrateResult, error) {
	if !in.State.ReadyForImages {
		return contractx.OrchestrateResult{}, fmt.Errorf(
			"%w: project details are not complete enough to generate content", contractx.ErrValidation)
	}

	resp, err := o.subagents.ContentWriter().Write(ctx, contractx.ContentRequest{
		State:    in.State,
		Feedback: in.Message,
	})
	if err != nil {
		return contractx.OrchestrateResult{}, fmt.Errorf("content generation: %w", err)
	}

	return contractx.OrchestrateResult{
		State:   statex.Merge(in.State, resp.Patch),
		Message: "Draft content is ready for review.",
	}, nil
}

func (o *Orchestrator) runFinishing(_ context.Context, in contractx.OrchestrateInput) (contractx.OrchestrateResult, error) {
	report := qualityx.Check(in.State)

	msg := "Everything checks out. The project is ready to publish."
	if !report.Ready {
		msg = "Before publishing: " + report.TopPriority
	} else if report.TopPriority != "" {
		msg = "Ready to publish. One suggestion: " + report.TopPriority
	}

	return contractx.OrchestrateResult{State: in.State, Message: msg}, nil
}

func extractionMessage(st statex.ProjectState) string {
	if len(st.NeedsClarification) > 0 {
		return "A couple of details would help: " + strings.Join(st.NeedsClarification, ", ")
	}
	if st.ReadyForImages {
		return "Great, that's enough detail to start on photos."
	}
	return "Noted. Tell me more about the job when you're ready."
}
