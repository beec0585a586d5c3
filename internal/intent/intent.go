// Package intent turns an utterance plus conversation hints into a structured
// Intent. Classifiers are composed into a Chain that falls back from the
// oracle-backed stage to the deterministic keyword scorer.
package intent

import (
	"context"
	"fmt"
)

// Category is the top-level kind of request.
type Category string

const (
	Build        Category = "build"
	Modify       Category = "modify"
	Analyze      Category = "analyze"
	Manage       Category = "manage"
	Question     Category = "question"
	Conversation Category = "conversation"
)

// Priority is the tie-break order used when two categories score the same.
var Priority = []Category{Build, Modify, Analyze, Manage, Question, Conversation}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, p := range Priority {
		if p == c {
			return true
		}
	}
	return false
}

// Complexity estimates how much work a request implies.
type Complexity string

const (
	Simple     Complexity = "simple"
	Medium     Complexity = "medium"
	Complex    Complexity = "complex"
	Enterprise Complexity = "enterprise"
)

// Valid reports whether c is a known complexity.
func (c Complexity) Valid() bool {
	switch c {
	case Simple, Medium, Complex, Enterprise:
		return true
	}
	return false
}

// Management subcategories.
const (
	SubPause  = "pause"
	SubResume = "resume"
	SubCancel = "cancel"
	SubStatus = "status"
	SubList   = "list"
)

// SubClarify is the subcategory used when nothing was recognized.
const SubClarify = "clarify"

// Parameters carries the free-text payload of an intent.
type Parameters struct {
	Description string `json:"description"`
	Target      string `json:"target,omitempty"`
}

// Intent is the structured reading of one utterance.
type Intent struct {
	Category            Category   `json:"category"`
	Subcategory         string     `json:"subcategory"`
	Parameters          Parameters `json:"parameters"`
	RequiredAgents      []string   `json:"requiredAgents"`
	EstimatedComplexity Complexity `json:"estimatedComplexity"`
}

// Scored is an Intent with the confidence of the stage that produced it.
type Scored struct {
	Intent
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Hints is the slice of conversation state a classifier may look at.
type Hints struct {
	History      []string
	LastWorkItem string
}

// Classifier scores an utterance.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, utterance string, hints Hints) (Scored, error)
}

// Unrecognized is the default when no stage clears the confidence floor.
func Unrecognized(utterance string) Scored {
	return Scored{
		Intent: Intent{
			Category:            Conversation,
			Subcategory:         SubClarify,
			Parameters:          Parameters{Description: utterance},
			EstimatedComplexity: Simple,
		},
		Source: "default",
	}
}

func (i *Intent) validate() error {
	if !i.Category.Valid() {
		return fmt.Errorf("unknown category %q", i.Category)
	}
	if i.EstimatedComplexity == "" {
		i.EstimatedComplexity = Medium
	}
	if !i.EstimatedComplexity.Valid() {
		return fmt.Errorf("unknown complexity %q", i.EstimatedComplexity)
	}
	return nil
}
