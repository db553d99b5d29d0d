package control

import (
	"time"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// StepTiming is the elapsed wall time of one step.
type StepTiming struct {
	Name    string
	Kind    model.StepKind
	Status  model.StepStatus
	Elapsed time.Duration
}

// TimingSummary aggregates step timings of a finished execution.
type TimingSummary struct {
	Steps []StepTiming
	// Total is the span from the earliest step start to the latest step
	// end, not the sum of step durations: steps may run in parallel.
	Total time.Duration
}

// Timings computes a timing summary from observed steps.
func Timings(steps []model.StepInfo) TimingSummary {
	summary := TimingSummary{Steps: make([]StepTiming, 0, len(steps))}

	var first, last time.Time

	for i := range steps {
		step := &steps[i]
		summary.Steps = append(summary.Steps, StepTiming{
			Name:    step.Name,
			Kind:    step.Kind,
			Status:  step.Status,
			Elapsed: Round(step.Elapsed()),
		})

		if step.StartedAt.IsZero() {
			continue
		}

		if first.IsZero() || step.StartedAt.Before(first) {
			first = step.StartedAt
		}

		if step.EndedAt.After(last) {
			last = step.EndedAt
		}
	}

	if !first.IsZero() && last.After(first) {
		summary.Total = Round(last.Sub(first))
	}

	return summary
}

// Round trims a duration to a precision a human wants to read in a report.
func Round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		d = d.Round(time.Minute)
	case d > time.Minute:
		d = d.Round(time.Second)
	case d > time.Second:
		d = d.Round(100 * time.Millisecond)
	case d > time.Millisecond:
		d = d.Round(time.Millisecond)
	case d > time.Microsecond:
		d = d.Round(time.Microsecond)
	}

	return d
}
