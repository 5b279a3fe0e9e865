package quality

import (
	"strings"
	"testing"

	statex "github.com/knearme/portfolio-agent/agent/state"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func completeState() statex.ProjectState {
	return statex.ProjectState{
		ProjectType: "tuckpointing",
		Title:       "Brick repointing in Beacon Hill",
		Description: words(200),
		Images:      []statex.ProjectImage{{ID: "img-1", URL: "https://cdn.example/1.jpg"}},
		Tags:        []string{"masonry"},
		SEOTitle:    "Brick repointing | Beacon Hill",
		SEODescription: "Full repointing of a historic rowhouse facade " +
			"with color-matched lime mortar.",
	}
}

func TestCheckCompleteStateIsReady(t *testing.T) {
	t.Parallel()

	report := Check(completeState())
	if !report.Ready {
		t.Fatalf("expected ready, missing=%v", report.Missing)
	}
	if len(report.Missing) != 0 || len(report.Warnings) != 0 {
		t.Fatalf("unexpected findings: %+v", report)
	}
	if report.TopPriority != "" {
		t.Fatalf("unexpected top priority: %q", report.TopPriority)
	}
}

func TestCheckTitleBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		length int
		ready  bool
	}{
		{4, false},
		{5, true},
		{100, true},
		{101, false},
	}
	for _, tc := range cases {
		s := completeState()
		s.Title = strings.Repeat("a", tc.length)
		report := Check(s)
		if report.Ready != tc.ready {
			t.Fatalf("title length %d: ready=%v, want %v", tc.length, report.Ready, tc.ready)
		}
	}
}

func TestCheckTitleCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		runes int
		ready bool
	}{
		{100, true},
		{101, false},
	}
	for _, tc := range cases {
		s := completeState()
		s.Title = strings.Repeat("é", tc.runes)
		report := Check(s)
		if report.Ready != tc.ready {
			t.Fatalf("title of %d multi-byte runes: ready=%v, want %v", tc.runes, report.Ready, tc.ready)
		}
	}
}

func TestCheckDescriptionBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		words   int
		ready   bool
		warning bool
	}{
		{49, false, false},
		{50, true, true},
		{199, true, true},
		{200, true, false},
	}
	for _, tc := range cases {
		s := completeState()
		s.Description = words(tc.words)
		report := Check(s)
		if report.Ready != tc.ready {
			t.Fatalf("%d words: ready=%v, want %v", tc.words, report.Ready, tc.ready)
		}
		if (len(report.Warnings) > 0) != tc.warning {
			t.Fatalf("%d words: warnings=%v, want warning=%v", tc.words, report.Warnings, tc.warning)
		}
	}
}

func TestCheckMissingImagesBlocks(t *testing.T) {
	t.Parallel()

	s := completeState()
	s.Images = nil
	report := Check(s)
	if report.Ready {
		t.Fatal("expected not ready without images")
	}
	if report.TopPriority != report.Missing[0] {
		t.Fatalf("top priority %q should be first missing item", report.TopPriority)
	}
}

func TestCheckTopPriorityFollowsTableOrder(t *testing.T) {
	t.Parallel()

	s := completeState()
	s.Title = "abc"
	s.Images = nil
	report := Check(s)
	if !strings.Contains(report.TopPriority, "title") {
		t.Fatalf("expected title first, got %q", report.TopPriority)
	}
}

func TestCheckWarningsDoNotBlock(t *testing.T) {
	t.Parallel()

	s := completeState()
	s.Tags = nil
	s.SEOTitle = ""
	report := Check(s)
	if !report.Ready {
		t.Fatal("warnings must not block readiness")
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", report.Warnings)
	}
	if report.TopPriority != report.Warnings[0] {
		t.Fatalf("top priority should fall back to first warning, got %q", report.TopPriority)
	}
	if len(report.Suggestions) == 0 {
		t.Fatal("expected auto-generate suggestion for SEO fields")
	}
}
