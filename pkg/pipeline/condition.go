package pipeline

import (
	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// ConditionType is a vendor comparison operator.
type ConditionType string

const (
	ConditionEquals               ConditionType = "Equals"
	ConditionGreaterThan          ConditionType = "GreaterThan"
	ConditionGreaterThanOrEqualTo ConditionType = "GreaterThanOrEqualTo"
	ConditionLessThan             ConditionType = "LessThan"
	ConditionLessThanOrEqualTo    ConditionType = "LessThanOrEqualTo"
)

// Condition compares two values at execution time. Either side may be a
// literal, a Ref or a JSONGet.
type Condition struct {
	Type  ConditionType
	Left  any
	Right any
}

// ConditionStep gates its IfSteps (and ElseSteps) on all conditions holding.
// Branch steps belong to the condition and must not be added to the pipeline
// as top-level steps.
type ConditionStep struct {
	Name       string
	Conditions []Condition
	IfSteps    []Step
	ElseSteps  []Step
	DependsOn  []string
}

// StepName implements Step.
func (s *ConditionStep) StepName() string { return s.Name }

// Kind implements Step.
func (s *ConditionStep) Kind() model.StepKind { return model.ConditionStepKind }

// Dependencies implements Step.
func (s *ConditionStep) Dependencies() []string { return s.DependsOn }

// Branches returns all branch steps, if-branch first.
func (s *ConditionStep) Branches() []Step {
	branches := make([]Step, 0, len(s.IfSteps)+len(s.ElseSteps))
	branches = append(branches, s.IfSteps...)
	branches = append(branches, s.ElseSteps...)

	return branches
}

func (s *ConditionStep) document() (stepDoc, error) {
	if s.Name == "" {
		return stepDoc{}, errors.Wrap(ErrEmptyName, "condition step")
	}

	if len(s.Conditions) == 0 {
		return stepDoc{}, errors.Errorf("condition step %s: at least one condition must be set", s.Name)
	}

	conditions := make([]map[string]any, 0, len(s.Conditions))

	for _, cond := range s.Conditions {
		conditions = append(conditions, map[string]any{
			"Type":       cond.Type,
			"LeftValue":  cond.Left,
			"RightValue": cond.Right,
		})
	}

	ifDocs, err := documents(s.IfSteps)
	if err != nil {
		return stepDoc{}, errors.Wrapf(err, "condition step %s: if branch", s.Name)
	}

	elseDocs, err := documents(s.ElseSteps)
	if err != nil {
		return stepDoc{}, errors.Wrapf(err, "condition step %s: else branch", s.Name)
	}

	return stepDoc{
		Name:      s.Name,
		Type:      s.Kind(),
		DependsOn: s.DependsOn,
		Arguments: map[string]any{
			"Conditions": conditions,
			"IfSteps":    ifDocs,
			"ElseSteps":  elseDocs,
		},
	}, nil
}
