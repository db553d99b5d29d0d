package pipeline

import (
	"encoding/json"
)

// Ref is a runtime reference resolved by the execution engine, rendered as
// {"Get": "..."} in the definition document.
type Ref struct {
	path string
}

// MarshalJSON implements json.Marshaler.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"Get": r.path})
}

// Path returns the reference path.
func (r Ref) Path() string { return r.path }

// ParamRef references a pipeline parameter by name.
func ParamRef(name string) Ref {
	return Ref{path: "Parameters." + name}
}

// ExecutionRef references a property of the running execution, e.g.
// "PipelineExecutionId" or "PipelineName".
func ExecutionRef(property string) Ref {
	return Ref{path: "Execution." + property}
}

// StepRef references a property of another step, e.g.
// StepRef("Train", "ModelArtifacts.S3ModelArtifacts").
func StepRef(stepName, property string) Ref {
	return Ref{path: "Steps." + stepName + "." + property}
}

// JSONGet reads a JSON path out of a property file produced by an earlier
// step. Rendered as {"Std:JsonGet": {...}}.
type JSONGet struct {
	PropertyFile Ref
	Path         string
}

// MarshalJSON implements json.Marshaler.
func (j JSONGet) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"Std:JsonGet": map[string]any{
			"PropertyFile": j.PropertyFile,
			"Path":         j.Path,
		},
	})
}

// Join concatenates values and references with a separator at execution time.
// Rendered as {"Std:Join": {"On": ..., "Values": [...]}}.
type Join struct {
	On     string
	Values []any
}

// MarshalJSON implements json.Marshaler.
func (j Join) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"Std:Join": map[string]any{
			"On":     j.On,
			"Values": j.Values,
		},
	})
}
