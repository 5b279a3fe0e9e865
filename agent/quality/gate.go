// Package quality holds the deterministic publish-readiness rules. It is the
// authoritative gate before a publish action: no language-model judgment is
// consulted here.
package quality

import (
	"fmt"
	"strings"
	"unicode/utf8"

	statex "github.com/knearme/portfolio-agent/agent/state"
)

type RuleStatus string

const (
	StatusComplete   RuleStatus = "complete"
	StatusWarning    RuleStatus = "warning"
	StatusIncomplete RuleStatus = "incomplete"
)

const (
	titleMinChars        = 5
	titleMaxChars        = 100
	descriptionFullWords = 200
	descriptionThinWords = 50
)

// Item is one evaluated rule.
type Item struct {
	Field   string     `json:"field"`
	Status  RuleStatus `json:"status"`
	Message string     `json:"message"`
	Hint    string     `json:"hint,omitempty"`
}

// Report is the outcome of a full check. Ready is true iff every primary
// rule is complete; warnings never block readiness.
type Report struct {
	Ready       bool     `json:"ready"`
	Missing     []string `json:"missing,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	TopPriority string   `json:"topPriority,omitempty"`
}

// Check evaluates the fixed rule table against a state. Rule order defines
// priority: title, description, images, project type, then the non-blocking
// SEO rules.
func Check(s statex.ProjectState) Report {
	items := []Item{
		checkTitle(s.Title),
		checkDescription(s.Description),
		checkImages(len(s.Images)),
		checkProjectType(s.ProjectType),
		checkTags(s.Tags),
		checkSEO(s.SEOTitle, s.SEODescription),
	}

	report := Report{Ready: true}
	for _, item := range items {
		switch item.Status {
		case StatusIncomplete:
			report.Ready = false
			report.Missing = append(report.Missing, item.Message)
		case StatusWarning:
			report.Warnings = append(report.Warnings, item.Message)
		}
		if item.Hint != "" {
			report.Suggestions = append(report.Suggestions, item.Hint)
		}
	}

	switch {
	case len(report.Missing) > 0:
		report.TopPriority = report.Missing[0]
	case len(report.Warnings) > 0:
		report.TopPriority = report.Warnings[0]
	}

	return report
}

func checkTitle(title string) Item {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < titleMinChars || n > titleMaxChars {
		return Item{
			Field:   "title",
			Status:  StatusIncomplete,
			Message: fmt.Sprintf("title must be %d-%d characters", titleMinChars, titleMaxChars),
		}
	}
	return Item{Field: "title", Status: StatusComplete}
}

func checkDescription(description string) Item {
	words := len(strings.Fields(description))
	switch {
	case words >= descriptionFullWords:
		return Item{Field: "description", Status: StatusComplete}
	case words >= descriptionThinWords:
		return Item{
			Field:   "description",
			Status:  StatusWarning,
			Message: fmt.Sprintf("description is thin (%d words, aim for %d+)", words, descriptionFullWords),
		}
	default:
		return Item{
			Field:   "description",
			Status:  StatusIncomplete,
			Message: fmt.Sprintf("description needs at least %d words", descriptionThinWords),
		}
	}
}

func checkImages(count int) Item {
	if count < 1 {
		return Item{
			Field:   "images",
			Status:  StatusIncomplete,
			Message: "at least one project photo is required",
		}
	}
	return Item{Field: "images", Status: StatusComplete}
}

func checkProjectType(projectType string) Item {
	if strings.TrimSpace(projectType) == "" {
		return Item{
			Field:   "projectType",
			Status:  StatusIncomplete,
			Message: "project type is required",
		}
	}
	return Item{Field: "projectType", Status: StatusComplete}
}

func checkTags(tags []string) Item {
	if len(tags) == 0 {
		return Item{
			Field:   "tags",
			Status:  StatusWarning,
			Message: "tags are recommended for SEO",
		}
	}
	return Item{Field: "tags", Status: StatusComplete}
}

func checkSEO(seoTitle, seoDescription string) Item {
	if strings.TrimSpace(seoTitle) == "" || strings.TrimSpace(seoDescription) == "" {
		return Item{
			Field:   "seo",
			Status:  StatusWarning,
			Message: "SEO title and description are missing",
			Hint:    "auto-generate SEO fields from the title and description",
		}
	}
	return Item{Field: "seo", Status: StatusComplete}
}
