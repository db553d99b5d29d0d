package pipeline

import (
	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// Processor describes the container and cluster a processing step runs on.
// InstanceType and InstanceCount may be literals or parameter references.
type Processor struct {
	ImageURI      string
	InstanceType  any
	InstanceCount any
	VolumeSizeGB  int
	RoleARN       string
	Entrypoint    []string
	Arguments     []string
	Environment   map[string]string
}

// ProcessingInput maps an S3 source onto a local path inside the container.
type ProcessingInput struct {
	Name         string
	Source       any // S3 URI, literal or reference
	Destination  string
	Distribution string // defaults to FullyReplicated
}

// ProcessingOutput uploads a local path to S3 when the job ends.
type ProcessingOutput struct {
	Name        string
	Source      string
	Destination any // S3 URI, literal or reference
}

// ProcessingStep declares a vendor-managed processing job.
type ProcessingStep struct {
	Name          string
	Processor     Processor
	Inputs        []ProcessingInput
	Outputs       []ProcessingOutput
	PropertyFiles []PropertyFile
	DependsOn     []string
}

// StepName implements Step.
func (s *ProcessingStep) StepName() string { return s.Name }

// Kind implements Step.
func (s *ProcessingStep) Kind() model.StepKind { return model.ProcessingStepKind }

// Dependencies implements Step.
func (s *ProcessingStep) Dependencies() []string { return s.DependsOn }

// OutputRef references the S3 URI of a named output of this step.
func (s *ProcessingStep) OutputRef(outputName string) Ref {
	return StepRef(s.Name, "ProcessingOutputConfig.Outputs['"+outputName+"'].S3Output.S3Uri")
}

func (s *ProcessingStep) document() (stepDoc, error) {
	if s.Name == "" {
		return stepDoc{}, errors.Wrap(ErrEmptyName, "processing step")
	}

	if s.Processor.ImageURI == "" {
		return stepDoc{}, errors.Errorf("processing step %s: image must be set", s.Name)
	}

	appSpec := map[string]any{"ImageUri": s.Processor.ImageURI}
	if len(s.Processor.Entrypoint) > 0 {
		appSpec["ContainerEntrypoint"] = s.Processor.Entrypoint
	}

	if len(s.Processor.Arguments) > 0 {
		appSpec["ContainerArguments"] = s.Processor.Arguments
	}

	args := map[string]any{
		"AppSpecification": appSpec,
		"ProcessingResources": map[string]any{
			"ClusterConfig": map[string]any{
				"InstanceType":   s.Processor.InstanceType,
				"InstanceCount":  s.Processor.InstanceCount,
				"VolumeSizeInGB": s.Processor.VolumeSizeGB,
			},
		},
		"RoleArn": s.Processor.RoleARN,
	}

	if len(s.Processor.Environment) > 0 {
		args["Environment"] = s.Processor.Environment
	}

	if len(s.Inputs) > 0 {
		inputs := make([]map[string]any, 0, len(s.Inputs))

		for _, in := range s.Inputs {
			distribution := in.Distribution
			if distribution == "" {
				distribution = "FullyReplicated"
			}

			inputs = append(inputs, map[string]any{
				"InputName": in.Name,
				"AppManaged": false,
				"S3Input": map[string]any{
					"S3Uri":                  in.Source,
					"LocalPath":              in.Destination,
					"S3DataType":             "S3Prefix",
					"S3InputMode":            "File",
					"S3DataDistributionType": distribution,
				},
			})
		}

		args["ProcessingInputs"] = inputs
	}

	if len(s.Outputs) > 0 {
		outputs := make([]map[string]any, 0, len(s.Outputs))

		for _, out := range s.Outputs {
			outputs = append(outputs, map[string]any{
				"OutputName": out.Name,
				"AppManaged": false,
				"S3Output": map[string]any{
					"S3Uri":        out.Destination,
					"LocalPath":    out.Source,
					"S3UploadMode": "EndOfJob",
				},
			})
		}

		args["ProcessingOutputConfig"] = map[string]any{"Outputs": outputs}
	}

	return stepDoc{
		Name:          s.Name,
		Type:          s.Kind(),
		DependsOn:     s.DependsOn,
		Arguments:     args,
		PropertyFiles: s.PropertyFiles,
	}, nil
}
