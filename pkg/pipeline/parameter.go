package pipeline

import (
	"github.com/pkg/errors"
)

// ParameterType is the vendor type of a pipeline parameter.
type ParameterType string

const (
	ParameterTypeString  ParameterType = "String"
	ParameterTypeInteger ParameterType = "Integer"
	ParameterTypeFloat   ParameterType = "Float"
)

// Parameter is a pipeline parameter with a default value. Executions may
// override the default; steps reference the effective value through Ref().
type Parameter struct {
	Name         string        `json:"Name"`
	Type         ParameterType `json:"Type"`
	DefaultValue any           `json:"DefaultValue,omitempty"`
}

// StringParameter declares a string parameter.
func StringParameter(name, defaultValue string) Parameter {
	return Parameter{Name: name, Type: ParameterTypeString, DefaultValue: defaultValue}
}

// IntegerParameter declares an integer parameter.
func IntegerParameter(name string, defaultValue int) Parameter {
	return Parameter{Name: name, Type: ParameterTypeInteger, DefaultValue: defaultValue}
}

// FloatParameter declares a float parameter.
func FloatParameter(name string, defaultValue float64) Parameter {
	return Parameter{Name: name, Type: ParameterTypeFloat, DefaultValue: defaultValue}
}

// Ref references the parameter from a step argument.
func (p Parameter) Ref() Ref {
	return ParamRef(p.Name)
}

func (p Parameter) validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}

	if p.DefaultValue == nil {
		return nil
	}

	ok := false

	switch p.Type {
	case ParameterTypeString:
		_, ok = p.DefaultValue.(string)
	case ParameterTypeInteger:
		switch p.DefaultValue.(type) {
		case int, int32, int64:
			ok = true
		}
	case ParameterTypeFloat:
		switch p.DefaultValue.(type) {
		case float32, float64:
			ok = true
		}
	default:
		return errors.Wrapf(ErrParameterDefault, "unknown type %q", p.Type)
	}

	if !ok {
		return errors.Wrapf(ErrParameterDefault, "parameter %s (%s)", p.Name, p.Type)
	}

	return nil
}
