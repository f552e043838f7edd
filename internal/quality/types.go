// Package quality implements the post-hoc output scorer described in
// spec.md §4.9: each task result is scored on a handful of 0.0-1.0
// dimensions depending on its shape (code, text, or completion), and the
// result is attached to the task as a TaskUpdate of kind=quality.
package quality

import "github.com/GaryOcean428/gary-zero-sub001/pkg/models"

// ResultKind classifies a task's output for dimension selection.
type ResultKind string

const (
	KindCode       ResultKind = "code"
	KindText       ResultKind = "text"
	KindCompletion ResultKind = "completion"
)

// Input is what the Quality Controller is asked to score.
type Input struct {
	TaskID      string
	Kind        ResultKind
	Content     string
	Language    string // only meaningful for KindCode; "go" enables syntactic-validity scoring
	Description string // the task's description, used for relevance/completeness scoring
}

// Metric is one named 0.0-1.0 score contributing to Assessment.Overall.
type Metric struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Recommendation is a ranked remediation hint.
type Recommendation struct {
	Rank int    `json:"rank"`
	Hint string `json:"hint"`
}

// Assessment is the Quality Controller's output, attached as a TaskUpdate
// of kind=quality (spec.md §4.9 "Output").
type Assessment struct {
	TaskID          string           `json:"task_id"`
	Kind            ResultKind       `json:"kind"`
	Metrics         []Metric         `json:"metrics"`
	Overall         float64          `json:"overall"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Missing         bool             `json:"missing,omitempty"`
	MissingReason   string           `json:"missing_reason,omitempty"`
}

// AsTaskUpdatePayload flattens the assessment for TaskUpdate.Payload.
func (a Assessment) AsTaskUpdatePayload() map[string]any {
	metrics := make(map[string]float64, len(a.Metrics))
	for _, m := range a.Metrics {
		metrics[m.Name] = m.Score
	}
	hints := make([]string, len(a.Recommendations))
	for i, r := range a.Recommendations {
		hints[i] = r.Hint
	}
	return map[string]any{
		"kind":            string(a.Kind),
		"metrics":         metrics,
		"overall":         a.Overall,
		"recommendations": hints,
		"missing":         a.Missing,
		"missing_reason":  a.MissingReason,
	}
}

// Controller is the Quality Controller contract.
type Controller interface {
	// Assess scores a task's output. A failure to assess (e.g. unparseable
	// code in a language without a parser) is recorded as Assessment.Missing,
	// not as a returned error — spec.md §4.9 treats it as a missing
	// assessment, never a task failure.
	Assess(input Input) Assessment
}

// taskUpdateKind is the kind value under which assessments are persisted.
const taskUpdateKind = models.TaskUpdateKindQuality
