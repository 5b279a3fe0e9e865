package subagent

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
	promptx "github.com/knearme/portfolio-agent/agent/prompt"
	statex "github.com/knearme/portfolio-agent/agent/state"
)

// The embedded prompts contain literal JSON-example braces; constructing the
// sub-agents with the real templates keeps the prompt formatting path under
// test, not just the parsing and validation around it.
var testPrompts = promptx.LoadPromptSet()

// staticChatModel answers every generate call with a canned assistant
// message, so the surrounding graph and validation can be tested without a
// live backend.
type staticChatModel struct {
	content string
}

func (m *staticChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.content, nil), nil
}

func (m *staticChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming is not supported")
}

func TestExtractorRequiresMessage(t *testing.T) {
	t.Parallel()

	ext, err := newExtractor(context.Background(), &staticChatModel{content: `{}`}, testPrompts.Extractor)
	if err != nil {
		t.Fatalf("newExtractor: %v", err)
	}

	_, err = ext.Extract(context.Background(), contractx.ExtractionRequest{Message: "   "})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Extract() error = %v, want ErrValidation", err)
	}
}

func TestExtractorParsesStructuredOutput(t *testing.T) {
	t.Parallel()

	reply := `{"project_type":"kitchen remodel","city":"Austin","state":"TX","materials":["quartz","maple"]}`
	ext, err := newExtractor(context.Background(), &staticChatModel{content: reply}, testPrompts.Extractor)
	if err != nil {
		t.Fatalf("newExtractor: %v", err)
	}

	resp, err := ext.Extract(context.Background(), contractx.ExtractionRequest{Message: "we remodeled a kitchen in austin"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if resp.Patch.ProjectType != "kitchen remodel" || resp.Patch.City != "Austin" {
		t.Fatalf("patch = %+v", resp.Patch)
	}
	if len(resp.Patch.Materials) != 2 {
		t.Fatalf("materials = %v, want 2 entries", resp.Patch.Materials)
	}
}

func TestWriterRejectsIncompleteOutput(t *testing.T) {
	t.Parallel()

	w, err := newWriter(context.Background(), &staticChatModel{content: `{"title":"Only a Title"}`}, testPrompts.Writer)
	if err != nil {
		t.Fatalf("newWriter: %v", err)
	}

	_, err = w.Write(context.Background(), contractx.ContentRequest{})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Write() error = %v, want ErrSchemaViolation", err)
	}
}

func TestWriterParsesStructuredOutput(t *testing.T) {
	t.Parallel()

	reply := `{"title":"Chimney Rebuild in Boston","description":"We rebuilt the crown and relaid the top courses.","tags":["masonry"]}`
	w, err := newWriter(context.Background(), &staticChatModel{content: reply}, testPrompts.Writer)
	if err != nil {
		t.Fatalf("newWriter: %v", err)
	}

	resp, err := w.Write(context.Background(), contractx.ContentRequest{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if resp.Patch.Title == "" || resp.Patch.Description == "" {
		t.Fatalf("patch = %+v", resp.Patch)
	}
}

func TestComposerValidatesBlocks(t *testing.T) {
	t.Parallel()

	state := statex.ProjectState{Images: []statex.ProjectImage{{ID: "img-1"}}}

	cases := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{
			name:  "valid layout",
			reply: `{"blocks":[{"kind":"hero","image_ids":["img-1"]},{"kind":"narrative","body":"We rebuilt it."}]}`,
		},
		{
			name:    "unknown kind",
			reply:   `{"blocks":[{"kind":"carousel"}]}`,
			wantErr: true,
		},
		{
			name:    "unknown image reference",
			reply:   `{"blocks":[{"kind":"gallery","image_ids":["img-404"]}]}`,
			wantErr: true,
		},
		{
			name:    "no blocks",
			reply:   `{"blocks":[]}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, err := newComposer(context.Background(), &staticChatModel{content: tc.reply}, testPrompts.Composer)
			if err != nil {
				t.Fatalf("newComposer: %v", err)
			}

			resp, err := c.Compose(context.Background(), contractx.LayoutRequest{State: state})
			if tc.wantErr {
				if !errors.Is(err, contractx.ErrSchemaViolation) {
					t.Fatalf("Compose() error = %v, want ErrSchemaViolation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			if len(resp.Blocks) != 2 {
				t.Fatalf("blocks = %d, want 2", len(resp.Blocks))
			}
		})
	}
}

func TestMissingFieldsChasesGaps(t *testing.T) {
	t.Parallel()

	missing := missingFields(statex.ProjectState{})
	want := map[string]bool{
		"project_type": true, "customer_problem": true,
		"solution_approach": true, "materials_or_techniques": true, "city": true,
	}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v", missing)
	}
	for _, field := range missing {
		if !want[field] {
			t.Fatalf("unexpected field %q", field)
		}
	}

	full := statex.ProjectState{
		ProjectType:      "deck build",
		CustomerProblem:  "rotting boards",
		SolutionApproach: "rebuilt with composite",
		Techniques:       []string{"sistering", "hidden fasteners"},
		City:             "Denver",
	}
	if got := missingFields(full); len(got) != 0 {
		t.Fatalf("missing = %v, want none", got)
	}
}
