package pipeline

import (
	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// FileSource points model metrics at a file in S3.
type FileSource struct {
	ContentType string
	S3URI       any
}

// ModelMetrics attaches quality statistics to a registered model version.
type ModelMetrics struct {
	Statistics FileSource
}

// RegisterModelStep adds a model version to a model package group in the
// registry.
type RegisterModelStep struct {
	Name              string
	ModelPackageGroup string
	ImageURI          string
	ModelDataURL      any // usually TrainingStep.ModelArtifacts()
	ContentTypes      []string
	ResponseTypes     []string
	InferenceTypes    []string
	TransformTypes    []string
	ApprovalStatus    any // literal or parameter reference
	Metrics           *ModelMetrics
	DependsOn         []string
}

// StepName implements Step.
func (s *RegisterModelStep) StepName() string { return s.Name }

// Kind implements Step.
func (s *RegisterModelStep) Kind() model.StepKind { return model.RegisterModelStepKind }

// Dependencies implements Step.
func (s *RegisterModelStep) Dependencies() []string { return s.DependsOn }

func (s *RegisterModelStep) document() (stepDoc, error) {
	if s.Name == "" {
		return stepDoc{}, errors.Wrap(ErrEmptyName, "register model step")
	}

	if s.ModelPackageGroup == "" {
		return stepDoc{}, errors.Errorf("register model step %s: model package group must be set", s.Name)
	}

	args := map[string]any{
		"ModelPackageGroupName": s.ModelPackageGroup,
		"ModelApprovalStatus":   s.ApprovalStatus,
		"InferenceSpecification": map[string]any{
			"Containers": []map[string]any{{
				"Image":        s.ImageURI,
				"ModelDataUrl": s.ModelDataURL,
			}},
			"SupportedContentTypes":                   s.ContentTypes,
			"SupportedResponseMIMETypes":              s.ResponseTypes,
			"SupportedRealtimeInferenceInstanceTypes": s.InferenceTypes,
			"SupportedTransformInstanceTypes":         s.TransformTypes,
		},
	}

	if s.Metrics != nil {
		args["ModelMetrics"] = map[string]any{
			"ModelQuality": map[string]any{
				"Statistics": map[string]any{
					"ContentType": s.Metrics.Statistics.ContentType,
					"S3Uri":       s.Metrics.Statistics.S3URI,
				},
			},
		}
	}

	return stepDoc{
		Name:      s.Name,
		Type:      s.Kind(),
		DependsOn: s.DependsOn,
		Arguments: args,
	}, nil
}

// CreateModelStep creates a deployable model resource from a trained
// artifact.
type CreateModelStep struct {
	Name         string
	ImageURI     string
	ModelDataURL any
	RoleARN      string
	Environment  map[string]string
	DependsOn    []string
}

// StepName implements Step.
func (s *CreateModelStep) StepName() string { return s.Name }

// Kind implements Step.
func (s *CreateModelStep) Kind() model.StepKind { return model.CreateModelStepKind }

// Dependencies implements Step.
func (s *CreateModelStep) Dependencies() []string { return s.DependsOn }

func (s *CreateModelStep) document() (stepDoc, error) {
	if s.Name == "" {
		return stepDoc{}, errors.Wrap(ErrEmptyName, "create model step")
	}

	container := map[string]any{
		"Image":        s.ImageURI,
		"ModelDataUrl": s.ModelDataURL,
	}
	if len(s.Environment) > 0 {
		container["Environment"] = s.Environment
	}

	return stepDoc{
		Name:      s.Name,
		Type:      s.Kind(),
		DependsOn: s.DependsOn,
		Arguments: map[string]any{
			"PrimaryContainer": container,
			"ExecutionRoleArn": s.RoleARN,
		},
	}, nil
}
