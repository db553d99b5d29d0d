package control_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrocket/sagerun/pkg/control"
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

func TestRound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 90*time.Minute, control.Round(90*time.Minute+12*time.Second))
	assert.Equal(t, 5*time.Minute+3*time.Second, control.Round(5*time.Minute+3*time.Second+200*time.Millisecond))
	assert.Equal(t, 1500*time.Millisecond, control.Round(1523*time.Millisecond))
	assert.Equal(t, 42*time.Millisecond, control.Round(42*time.Millisecond+100*time.Microsecond))
	assert.Equal(t, time.Duration(0), control.Round(0))
}

func TestTimingsSpanNotSum(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// process and train overlap; the total is the outer span.
	steps := []model.StepInfo{
		{
			Name:      "prepare-data",
			Kind:      model.ProcessingStepKind,
			Status:    model.StepStatusSucceeded,
			StartedAt: start,
			EndedAt:   start.Add(10 * time.Minute),
		},
		{
			Name:      "train-model",
			Kind:      model.TrainingStepKind,
			Status:    model.StepStatusSucceeded,
			StartedAt: start.Add(5 * time.Minute),
			EndedAt:   start.Add(25 * time.Minute),
		},
		{
			Name:   "check-accuracy",
			Kind:   model.ConditionStepKind,
			Status: model.StepStatusStarting,
		},
	}

	summary := control.Timings(steps)

	require.Len(t, summary.Steps, 3)
	assert.Equal(t, 10*time.Minute, summary.Steps[0].Elapsed)
	assert.Equal(t, 20*time.Minute, summary.Steps[1].Elapsed)
	assert.Equal(t, 25*time.Minute, summary.Total)
}

func TestTimingsEmpty(t *testing.T) {
	t.Parallel()

	summary := control.Timings(nil)
	assert.Empty(t, summary.Steps)
	assert.Equal(t, time.Duration(0), summary.Total)
}
