package state

import (
	"strings"
)

// ProjectState is the canonical accumulator for everything learned about a
// contractor's project during a conversation. It is built fresh per
// orchestration call, hydrated from the session store and the newest tool
// arguments, and persisted back at the end of the turn. All continuity
// between turns lives in the external store.
type ProjectState struct {
	ProjectType     string `json:"projectType,omitempty"`
	ProjectTypeSlug string `json:"projectTypeSlug,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	Location        string `json:"location,omitempty"`

	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	SEOTitle         string `json:"seoTitle,omitempty"`
	SEODescription   string `json:"seoDescription,omitempty"`
	CustomerProblem  string `json:"customerProblem,omitempty"`
	SolutionApproach string `json:"solutionApproach,omitempty"`
	Duration         string `json:"duration,omitempty"`
	ProudOf          string `json:"proudOf,omitempty"`

	Materials  []string `json:"materials,omitempty"`
	Techniques []string `json:"techniques,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	Images      []ProjectImage `json:"images,omitempty"`
	HeroImageID string         `json:"heroImageId,omitempty"`

	// Derived flags. Recomputed by Recompute; clients cannot hand-set them.
	// ReadyToPublish mirrors the persisted publish status and is only ever
	// set via SetPublished.
	ReadyForImages  bool `json:"readyForImages"`
	ReadyForContent bool `json:"readyForContent"`
	ReadyToPublish  bool `json:"readyToPublish"`

	// Process-local conversation bookkeeping; never persisted.
	NeedsClarification []string `json:"-"`
	ClarifiedFields    []string `json:"-"`
}

type ImageType string

const (
	ImageBefore   ImageType = "before"
	ImageAfter    ImageType = "after"
	ImageProgress ImageType = "progress"
	ImageDetail   ImageType = "detail"
)

type ProjectImage struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	ImageType    ImageType `json:"imageType,omitempty"`
	AltText      string    `json:"altText,omitempty"`
	DisplayOrder int       `json:"displayOrder"`
}

// minSentenceWords is the bar for treating a narrative field as a real
// sentence rather than a fragment when computing readiness.
const minSentenceWords = 10

// genericProjectTypes are labels too vague to anchor image prompts or
// content generation on.
var genericProjectTypes = map[string]bool{
	"":           true,
	"project":    true,
	"job":        true,
	"work":       true,
	"other":      true,
	"general":    true,
	"misc":       true,
	"renovation": true,
	"repair":     true,
}

// Merge folds a partial update into a base state. Pure and total: no failure
// mode. Scalar fields overwrite only when the incoming value is non-empty
// after trimming; collections replace wholesale when a non-empty collection
// arrives, otherwise the base collection is kept. Wholesale replacement (not
// union) of materials/techniques/tags can drop previously mentioned entries
// when a later turn supplies a non-overlapping list; that behavior is
// intentional here until product confirms union semantics.
func Merge(base ProjectState, partial ProjectState) ProjectState {
	out := base

	cityChanged := applyText(&out.City, partial.City)
	stateChanged := applyText(&out.State, partial.State)

	applyText(&out.ProjectType, partial.ProjectType)
	applyText(&out.ProjectTypeSlug, partial.ProjectTypeSlug)
	applyText(&out.Title, partial.Title)
	applyText(&out.Description, partial.Description)
	applyText(&out.SEOTitle, partial.SEOTitle)
	applyText(&out.SEODescription, partial.SEODescription)
	applyText(&out.CustomerProblem, partial.CustomerProblem)
	applyText(&out.SolutionApproach, partial.SolutionApproach)
	applyText(&out.Duration, partial.Duration)
	applyText(&out.ProudOf, partial.ProudOf)

	if loc := strings.TrimSpace(partial.Location); loc != "" {
		out.Location = loc
	} else if cityChanged || stateChanged {
		out.Location = locationLabel(out.City, out.State)
	}

	out.Materials = mergeList(out.Materials, partial.Materials)
	out.Techniques = mergeList(out.Techniques, partial.Techniques)
	out.Tags = mergeList(out.Tags, partial.Tags)

	if len(partial.Images) > 0 {
		out.Images = append([]ProjectImage(nil), partial.Images...)
	}
	if hero := strings.TrimSpace(partial.HeroImageID); hero != "" {
		out.HeroImageID = hero
	}

	out.NeedsClarification = mergeList(out.NeedsClarification, partial.NeedsClarification)
	out.ClarifiedFields = mergeList(out.ClarifiedFields, partial.ClarifiedFields)

	out.Recompute()
	return out
}

// Recompute refreshes the derived readiness flags and repairs the hero image
// reference. ReadyToPublish is left alone: it tracks the store, not a local
// guess.
func (s *ProjectState) Recompute() {
	if s == nil {
		return
	}

	if s.HeroImageID != "" && !s.hasImage(s.HeroImageID) {
		s.HeroImageID = ""
	}

	s.ReadyForImages = !genericProjectTypes[strings.ToLower(strings.TrimSpace(s.ProjectType))] &&
		wordCount(s.CustomerProblem) >= minSentenceWords &&
		wordCount(s.SolutionApproach) >= minSentenceWords &&
		s.hasDifferentiator()

	s.ReadyForContent = s.ReadyForImages && len(s.Images) > 0
}

// SetPublished records the persisted publish status on the state.
func (s *ProjectState) SetPublished(published bool) {
	s.ReadyToPublish = published
}

// hasDifferentiator reports whether the project carries enough specifics to
// set it apart: two or more materials, or two or more techniques.
func (s *ProjectState) hasDifferentiator() bool {
	return len(s.Materials) >= 2 || len(s.Techniques) >= 2
}

func (s *ProjectState) hasImage(id string) bool {
	for _, img := range s.Images {
		if img.ID == id {
			return true
		}
	}
	return false
}

func applyText(dst *string, incoming string) bool {
	trimmed := strings.TrimSpace(incoming)
	if trimmed == "" {
		return false
	}
	changed := *dst != trimmed
	*dst = trimmed
	return changed
}

func mergeList(base []string, incoming []string) []string {
	if len(incoming) == 0 {
		return base
	}
	cleaned := make([]string, 0, len(incoming))
	for _, v := range incoming {
		if t := strings.TrimSpace(v); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return base
	}
	return cleaned
}

func locationLabel(city, state string) string {
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
