package contract

import (
	statex "github.com/knearme/portfolio-agent/agent/state"
)

// AgentKind names a sub-agent for model/temperature configuration.
type AgentKind string

const (
	AgentKindExtractor AgentKind = "extractor"
	AgentKindWriter    AgentKind = "writer"
	AgentKindComposer  AgentKind = "composer"
)

// Phase selects which sub-agent the orchestrator routes a turn to. It is
// supplied by the caller; the server keeps no phase machine of its own, so a
// client may request "generating" before gathering criteria are met. The
// quality gate is the only backstop for that gap.
type Phase string

const (
	PhaseGathering  Phase = "gathering"
	PhaseGenerating Phase = "generating"
	PhaseReady      Phase = "ready"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseGathering, PhaseGenerating, PhaseReady:
		return true
	}
	return false
}

// OrchestrateInput carries one conversational turn into the orchestrator.
type OrchestrateInput struct {
	State   statex.ProjectState `json:"state"`
	Message string              `json:"message"`
	Phase   Phase               `json:"phase"`
}

// OrchestrateResult returns the folded state plus an optional user-facing
// message. Sub-agent failures land in Err instead of an error return so the
// conversation can keep going.
type OrchestrateResult struct {
	State   statex.ProjectState `json:"state"`
	Message string              `json:"message,omitempty"`
	Err     string              `json:"error,omitempty"`
}

// ExtractionRequest asks the extraction sub-agent to reconcile free text
// against what is already known about the project.
type ExtractionRequest struct {
	State   statex.ProjectState `json:"state"`
	Message string              `json:"message"`
}

// ExtractionResponse is a partial state plus clarification bookkeeping.
type ExtractionResponse struct {
	Patch              statex.ProjectState `json:"patch"`
	NeedsClarification []string            `json:"needs_clarification,omitempty"`
	ClarifiedFields    []string            `json:"clarified_fields,omitempty"`
}

// ContentRequest asks the content sub-agent for narrative/SEO copy.
type ContentRequest struct {
	State    statex.ProjectState `json:"state"`
	Feedback string              `json:"feedback,omitempty"`
}

// ContentResponse carries generated narrative fields as a partial state.
type ContentResponse struct {
	Patch statex.ProjectState `json:"patch"`
}

// LayoutRequest asks the layout sub-agent for a page block arrangement.
type LayoutRequest struct {
	State    statex.ProjectState `json:"state"`
	Feedback string              `json:"feedback,omitempty"`
}

// LayoutBlock is one declarative section of the composed page. The client's
// block editor owns rendering; only the schema is stable here.
type LayoutBlock struct {
	Kind     string   `json:"kind"`
	Heading  string   `json:"heading,omitempty"`
	Body     string   `json:"body,omitempty"`
	ImageIDs []string `json:"image_ids,omitempty"`
}

type LayoutResponse struct {
	Blocks []LayoutBlock `json:"blocks"`
}
