package quality

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// scoreHistogram records the overall score distribution per result kind,
// per SPEC_FULL's DOMAIN STACK binding of prometheus/client_golang to
// Quality Controller score histograms.
var scoreHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "garyzero_quality_score",
		Help:    "Quality Controller overall scores by result kind",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	},
	[]string{"kind"},
)

// defaultController is the Controller implementation dispatching across
// the three result kinds spec.md §4.9 defines scoring dimensions for.
type defaultController struct{}

// NewController returns the default Quality Controller.
func NewController() Controller {
	return defaultController{}
}

func (defaultController) Assess(in Input) Assessment {
	if strings.TrimSpace(in.Content) == "" {
		return Assessment{
			TaskID:        in.TaskID,
			Kind:          in.Kind,
			Missing:       true,
			MissingReason: "empty content",
		}
	}

	var a Assessment
	switch in.Kind {
	case KindCode:
		a = scoreCode(in)
	case KindText:
		a = scoreText(in)
	case KindCompletion:
		a = scoreCompletion(in)
	default:
		return Assessment{
			TaskID:        in.TaskID,
			Kind:          in.Kind,
			Missing:       true,
			MissingReason: "unknown result kind " + string(in.Kind),
		}
	}

	if !a.Missing {
		scoreHistogram.WithLabelValues(string(in.Kind)).Observe(a.Overall)
	}
	return a
}

// NewTaskUpdate wraps an assessment as the TaskUpdate persisted by the Task
// Store, per spec.md §4.9 "Output" (a quality-kind TaskUpdate).
func NewTaskUpdate(updateID string, a Assessment, at time.Time) models.TaskUpdate {
	return models.TaskUpdate{
		UpdateID: updateID,
		TaskID:   a.TaskID,
		At:       at,
		Kind:     taskUpdateKind,
		Payload:  a.AsTaskUpdatePayload(),
	}
}
