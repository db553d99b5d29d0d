package pipeline

import (
	"github.com/pkg/errors"
)

var (
	ErrEmptyName          = errors.New("name must be set")
	ErrNoSteps            = errors.New("pipeline has no steps")
	ErrDuplicateStep      = errors.New("step name already used")
	ErrDuplicateParameter = errors.New("parameter name already used")
	ErrUnknownDependency  = errors.New("dependency does not match any step")
	ErrCycle              = errors.New("dependency would create a cycle")
	ErrParameterDefault   = errors.New("default value does not match parameter type")
	ErrBranchStepConflict = errors.New("branch step cannot also be a top-level step")
)
