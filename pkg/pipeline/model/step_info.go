package model

import "time"

// StepKind is the vendor step type.
type StepKind string

const (
	ProcessingStepKind    StepKind = "Processing"
	TrainingStepKind      StepKind = "Training"
	ConditionStepKind     StepKind = "Condition"
	RegisterModelStepKind StepKind = "RegisterModel"
	CreateModelStepKind   StepKind = "Model"
)

// StepStatus is the vendor status of a step within an execution.
type StepStatus string

const (
	StepStatusStarting  StepStatus = "Starting"
	StepStatusExecuting StepStatus = "Executing"
	StepStatusStopping  StepStatus = "Stopping"
	StepStatusStopped   StepStatus = "Stopped"
	StepStatusFailed    StepStatus = "Failed"
	StepStatusSucceeded StepStatus = "Succeeded"
)

// Terminal reports whether the step has finished, successfully or not.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusSucceeded, StepStatusFailed, StepStatusStopped:
		return true
	}

	return false
}

// StepInfo describes one step of a pipeline, either as declared by the
// builder (name and kind only) or as observed on a running execution.
type StepInfo struct {
	Name          string
	Kind          StepKind
	Status        StepStatus
	StartedAt     time.Time
	EndedAt       time.Time
	FailureReason string

	// JobARN is the backing job or resource created by the step, when the
	// service reports one.
	JobARN string

	// Outcome is only set for condition steps ("True" or "False").
	Outcome string
}

// Elapsed returns how long the step ran. Zero until the step has started;
// measured up to now while the step is still running.
func (s *StepInfo) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}

	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}

	return s.EndedAt.Sub(s.StartedAt)
}
