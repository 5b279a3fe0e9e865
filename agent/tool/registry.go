// Package tool exposes the bounded set of operations a model may invoke
// during a conversation turn. Every executor is bound at construction time
// to one immutable Context; a failing executor reports a structured
// unsuccessful Result instead of erroring, so the turn keeps going.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
	qualityx "github.com/knearme/portfolio-agent/agent/quality"
	statex "github.com/knearme/portfolio-agent/agent/state"
)

const (
	ToolPromptImageUpload      = "prompt_image_upload"
	ToolSuggestQuickActions    = "suggest_quick_actions"
	ToolExtractProjectDetails  = "extract_project_details"
	ToolGenerateProjectContent = "generate_project_content"
	ToolComposeProjectPage     = "compose_project_page"
	ToolCheckPublishReadiness  = "check_publish_readiness"
)

// Result is the value delivered back into the conversation for one tool
// call. Failures are values here, never raised errors.
type Result struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failure(tool, msg string) Result {
	return Result{Tool: tool, Success: false, Error: msg}
}

func success(tool string, data any) Result {
	return Result{Tool: tool, Success: true, Data: data}
}

// PublishChecker reads the persisted publish status for a project.
type PublishChecker interface {
	IsPublished(ctx context.Context, projectID, businessID string) (bool, error)
}

// DraftSaver persists the merged draft onto the project row. Implemented by
// the Postgres store; optional so session-only flows keep working.
type DraftSaver interface {
	SaveDraft(ctx context.Context, projectID, businessID string, draft statex.ProjectState) error
}

// Deps are the collaborators the executors dispatch into.
type Deps struct {
	Orchestrator contractx.Orchestrator
	Subagents    contractx.Registry
	Sessions     statex.SessionStore
	Projects     PublishChecker
}

// Registry holds the tool specs plus executors for one request.
type Registry struct {
	tctx Context
	deps Deps
}

func NewRegistry(tctx Context, deps Deps) (*Registry, error) {
	if deps.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if deps.Subagents == nil {
		return nil, errors.New("sub-agent registry is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	return &Registry{tctx: tctx, deps: deps}, nil
}

// Execute runs one named tool against raw model-supplied arguments.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs json.RawMessage) Result {
	started := time.Now()
	var res Result
	switch name {
	case ToolPromptImageUpload:
		res = r.promptImageUpload(rawArgs)
	case ToolSuggestQuickActions:
		res = r.suggestQuickActions(rawArgs)
	case ToolExtractProjectDetails:
		res = r.extractProjectDetails(ctx, rawArgs)
	case ToolGenerateProjectContent:
		res = r.generateProjectContent(ctx, rawArgs)
	case ToolComposeProjectPage:
		res = r.composeProjectPage(ctx, rawArgs)
	case ToolCheckPublishReadiness:
		res = r.checkPublishReadiness(ctx)
	default:
		res = failure(name, fmt.Sprintf("unknown tool %q", name))
	}

	log.Debug().
		Str("tool", name).
		Bool("success", res.Success).
		Dur("elapsed", time.Since(started)).
		Msg("tool executed")
	return res
}

/* --------------------------- echo / UI triggers -------------------------- */

type imageUploadArgs struct {
	Message    string   `json:"message"`
	ImageTypes []string `json:"image_types,omitempty"`
}

// promptImageUpload validates and bounces its arguments back so the client
// can render an upload prompt artifact.
func (r *Registry) promptImageUpload(raw json.RawMessage) Result {
	var args imageUploadArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(ToolPromptImageUpload, err.Error())
	}
	if strings.TrimSpace(args.Message) == "" {
		return failure(ToolPromptImageUpload, "message is required")
	}
	for _, it := range args.ImageTypes {
		switch statex.ImageType(it) {
		case statex.ImageBefore, statex.ImageAfter, statex.ImageProgress, statex.ImageDetail:
		default:
			return failure(ToolPromptImageUpload, fmt.Sprintf("unknown image type %q", it))
		}
	}
	return success(ToolPromptImageUpload, args)
}

type quickAction struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

type quickActionArgs struct {
	Actions []quickAction `json:"actions"`
}

func (r *Registry) suggestQuickActions(raw json.RawMessage) Result {
	var args quickActionArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(ToolSuggestQuickActions, err.Error())
	}
	if len(args.Actions) == 0 || len(args.Actions) > 4 {
		return failure(ToolSuggestQuickActions, "between 1 and 4 actions are required")
	}
	for _, a := range args.Actions {
		if strings.TrimSpace(a.Label) == "" || strings.TrimSpace(a.Message) == "" {
			return failure(ToolSuggestQuickActions, "each action needs a label and a message")
		}
	}
	return success(ToolSuggestQuickActions, args)
}

/* ---------------------------- state mutations ---------------------------- */

type extractArgs struct {
	ProjectType         string   `json:"project_type,omitempty"`
	City                string   `json:"city,omitempty"`
	State               string   `json:"state,omitempty"`
	Title               string   `json:"title,omitempty"`
	CustomerProblem     string   `json:"customer_problem,omitempty"`
	SolutionApproach    string   `json:"solution_approach,omitempty"`
	Duration            string   `json:"duration,omitempty"`
	ProudOf             string   `json:"proud_of,omitempty"`
	MaterialsMentioned  []string `json:"materials_mentioned,omitempty"`
	TechniquesMentioned []string `json:"techniques_mentioned,omitempty"`
	UserMessage         string   `json:"user_message"`
}

func (a extractArgs) patch() statex.ProjectState {
	return statex.ProjectState{
		ProjectType:      a.ProjectType,
		City:             a.City,
		State:            a.State,
		Title:            a.Title,
		CustomerProblem:  a.CustomerProblem,
		SolutionApproach: a.SolutionApproach,
		Duration:         a.Duration,
		ProudOf:          a.ProudOf,
		Materials:        a.MaterialsMentioned,
		Techniques:       a.TechniquesMentioned,
	}
}

func (r *Registry) extractProjectDetails(ctx context.Context, raw json.RawMessage) Result {
	var args extractArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(ToolExtractProjectDetails, err.Error())
	}
	if strings.TrimSpace(args.UserMessage) == "" {
		return failure(ToolExtractProjectDetails, "user_message is required")
	}

	st, err := r.hydrate(ctx)
	if err != nil {
		return failure(ToolExtractProjectDetails, err.Error())
	}
	st = statex.Merge(st, args.patch())

	out := r.deps.Orchestrator.Orchestrate(ctx, contractx.OrchestrateInput{
		State:   st,
		Message: args.UserMessage,
		Phase:   contractx.PhaseGathering,
	})
	if out.Err != "" {
		return failure(ToolExtractProjectDetails, out.Err)
	}

	if err := r.persist(ctx, out.State); err != nil {
		return failure(ToolExtractProjectDetails, err.Error())
	}
	return success(ToolExtractProjectDetails, map[string]any{
		"state":               out.State,
		"message":             out.Message,
		"needs_clarification": out.State.NeedsClarification,
	})
}

type generateArgs struct {
	Feedback string `json:"feedback,omitempty"`
}

func (r *Registry) generateProjectContent(ctx context.Context, raw json.RawMessage) Result {
	var args generateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(ToolGenerateProjectContent, err.Error())
	}

	st, err := r.hydrate(ctx)
	if err != nil {
		return failure(ToolGenerateProjectContent, err.Error())
	}

	out := r.deps.Orchestrator.Orchestrate(ctx, contractx.OrchestrateInput{
		State:   st,
		Message: args.Feedback,
		Phase:   contractx.PhaseGenerating,
	})
	if out.Err != "" {
		return failure(ToolGenerateProjectContent, out.Err)
	}

	if err := r.persist(ctx, out.State); err != nil {
		return failure(ToolGenerateProjectContent, err.Error())
	}
	return success(ToolGenerateProjectContent, map[string]any{
		"state":   out.State,
		"message": out.Message,
	})
}

/* -------------------------- parallel composition ------------------------- */

type composeArgs struct {
	Feedback string `json:"feedback,omitempty"`
}

// composeProjectPage fans out the content and layout sub-agents
// concurrently and joins both results. The two branches share no mutable
// state; either may fail independently and the combined failure is reported
// as one result value.
func (r *Registry) composeProjectPage(ctx context.Context, raw json.RawMessage) Result {
	var args composeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(ToolComposeProjectPage, err.Error())
	}

	st, err := r.hydrate(ctx)
	if err != nil {
		return failure(ToolComposeProjectPage, err.Error())
	}

	var (
		wg         sync.WaitGroup
		contentOut contractx.ContentResponse
		contentErr error
		layoutOut  contractx.LayoutResponse
		layoutErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		contentOut, contentErr = r.deps.Subagents.ContentWriter().Write(ctx, contractx.ContentRequest{
			State:    st,
			Feedback: args.Feedback,
		})
	}()
	go func() {
		defer wg.Done()
		layoutOut, layoutErr = r.deps.Subagents.LayoutComposer().Compose(ctx, contractx.LayoutRequest{
			State:    st,
			Feedback: args.Feedback,
		})
	}()
	wg.Wait()

	if contentErr != nil && layoutErr != nil {
		return failure(ToolComposeProjectPage,
			fmt.Sprintf("content: %v; layout: %v", contentErr, layoutErr))
	}
	if contentErr != nil {
		return failure(ToolComposeProjectPage, fmt.Sprintf("content generation failed: %v", contentErr))
	}
	if layoutErr != nil {
		return failure(ToolComposeProjectPage, fmt.Sprintf("layout composition failed: %v", layoutErr))
	}

	st = statex.Merge(st, contentOut.Patch)
	if err := r.persist(ctx, st); err != nil {
		return failure(ToolComposeProjectPage, err.Error())
	}
	return success(ToolComposeProjectPage, map[string]any{
		"state":  st,
		"blocks": layoutOut.Blocks,
	})
}

/* ---------------------------- read-only checks --------------------------- */

func (r *Registry) checkPublishReadiness(ctx context.Context) Result {
	st, err := r.hydrate(ctx)
	if err != nil {
		return failure(ToolCheckPublishReadiness, err.Error())
	}

	if r.deps.Projects != nil && r.tctx.ProjectID != "" {
		published, err := r.deps.Projects.IsPublished(ctx, r.tctx.ProjectID, r.tctx.BusinessID)
		if err != nil {
			return failure(ToolCheckPublishReadiness, fmt.Sprintf("publish status lookup failed: %v", err))
		}
		st.SetPublished(published)
	}

	report := qualityx.Check(st)
	return success(ToolCheckPublishReadiness, map[string]any{
		"report":         report,
		"readyToPublish": st.ReadyToPublish,
	})
}

/* ------------------------------- plumbing -------------------------------- */

func (r *Registry) hydrate(ctx context.Context) (statex.ProjectState, error) {
	if r.tctx.SessionID == "" {
		return statex.ProjectState{}, nil
	}
	ext, err := r.deps.Sessions.Load(ctx, r.tctx.SessionID)
	if errors.Is(err, statex.ErrExtractionNotFound) {
		return statex.ProjectState{}, nil
	}
	if err != nil {
		return statex.ProjectState{}, fmt.Errorf("load session extraction: %w", err)
	}
	return ext.State, nil
}

func (r *Registry) persist(ctx context.Context, st statex.ProjectState) error {
	if r.tctx.SessionID == "" {
		return nil
	}
	err := r.deps.Sessions.Save(ctx, &statex.SessionExtraction{
		SessionID: r.tctx.SessionID,
		ProjectID: r.tctx.ProjectID,
		State:     st,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save session extraction: %w", err)
	}

	if saver, ok := r.deps.Projects.(DraftSaver); ok && r.tctx.ProjectID != "" {
		if err := saver.SaveDraft(ctx, r.tctx.ProjectID, r.tctx.BusinessID, st); err != nil {
			return fmt.Errorf("save project draft: %w", err)
		}
	}
	return nil
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

// Specs returns the function declarations handed to the model alongside the
// registry. Identity and tenant parameters are deliberately absent: those
// come only from the closed-over Context.
func (r *Registry) Specs() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolPromptImageUpload,
				Description: openai.String("Ask the contractor to upload project photos. The client renders an upload prompt."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"message": map[string]any{
							"type":        "string",
							"description": "Short prompt shown above the upload control.",
						},
						"image_types": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string", "enum": []string{"before", "after", "progress", "detail"}},
						},
					},
					"required": []string{"message"},
				},
			},
		},
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolSuggestQuickActions,
				Description: openai.String("Offer up to four quick-reply chips the contractor can tap."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"actions": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"label":   map[string]any{"type": "string"},
									"message": map[string]any{"type": "string"},
								},
								"required": []string{"label", "message"},
							},
						},
					},
					"required": []string{"actions"},
				},
			},
		},
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolExtractProjectDetails,
				Description: openai.String("Record project facts mentioned by the contractor and reconcile them with what is already known."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"user_message":         map[string]any{"type": "string", "description": "The contractor's message being extracted from."},
						"project_type":         map[string]any{"type": "string"},
						"city":                 map[string]any{"type": "string"},
						"state":                map[string]any{"type": "string"},
						"title":                map[string]any{"type": "string"},
						"customer_problem":     map[string]any{"type": "string"},
						"solution_approach":    map[string]any{"type": "string"},
						"duration":             map[string]any{"type": "string"},
						"proud_of":             map[string]any{"type": "string"},
						"materials_mentioned":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"techniques_mentioned": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"user_message"},
				},
			},
		},
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolGenerateProjectContent,
				Description: openai.String("Generate portfolio page copy from the gathered project details."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"feedback": map[string]any{"type": "string", "description": "Optional revision feedback from the contractor."},
					},
				},
			},
		},
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolComposeProjectPage,
				Description: openai.String("Generate page copy and a block layout in parallel and return both."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"feedback": map[string]any{"type": "string"},
					},
				},
			},
		},
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolCheckPublishReadiness,
				Description: openai.String("Run the deterministic quality gate over the current project state."),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
	}
}
