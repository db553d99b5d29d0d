package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

func TestStepStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, model.StepStatusSucceeded.Terminal())
	assert.True(t, model.StepStatusFailed.Terminal())
	assert.True(t, model.StepStatusStopped.Terminal())
	assert.False(t, model.StepStatusExecuting.Terminal())
	assert.False(t, model.StepStatusStarting.Terminal())
}

func TestStepInfoElapsed(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	finished := &model.StepInfo{StartedAt: start, EndedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, finished.Elapsed())

	notStarted := &model.StepInfo{}
	assert.Equal(t, time.Duration(0), notStarted.Elapsed())

	running := &model.StepInfo{StartedAt: time.Now().Add(-time.Minute)}
	assert.Greater(t, running.Elapsed(), 59*time.Second)
}
