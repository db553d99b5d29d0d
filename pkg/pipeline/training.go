package pipeline

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// MetricDefinition extracts a named metric from the training logs.
type MetricDefinition struct {
	Name  string `json:"Name"`
	Regex string `json:"Regex"`
}

// DebugRule attaches a debugger or profiler rule evaluation to the training
// job.
type DebugRule struct {
	Name       string
	ImageURI   string
	Parameters map[string]string
}

// Estimator describes the training container, resources and hyperparameters.
// Instance fields and hyperparameter values may be literals or references;
// literal hyperparameters are stringified, references are resolved by the
// service.
type Estimator struct {
	ImageURI          string
	InstanceType      any
	InstanceCount     any
	VolumeSizeGB      int
	RoleARN           string
	OutputPath        any
	CheckpointS3URI   string
	Hyperparameters   map[string]any
	MetricDefinitions []MetricDefinition
	MaxRuntime        time.Duration
	Environment       map[string]string

	ProfilerS3OutputPath string
	DebugRules           []DebugRule
	ProfilerRules        []DebugRule
}

// TrainingInput feeds an S3 prefix into a training channel.
type TrainingInput struct {
	Channel      string
	Source       any // S3 URI, literal or reference
	ContentType  string
	Distribution string // defaults to FullyReplicated
}

// TrainingStep declares a vendor-managed training job.
type TrainingStep struct {
	Name      string
	Estimator Estimator
	Inputs    []TrainingInput
	DependsOn []string
}

// StepName implements Step.
func (s *TrainingStep) StepName() string { return s.Name }

// Kind implements Step.
func (s *TrainingStep) Kind() model.StepKind { return model.TrainingStepKind }

// Dependencies implements Step.
func (s *TrainingStep) Dependencies() []string { return s.DependsOn }

// ModelArtifacts references the S3 URI of the trained model artifact.
func (s *TrainingStep) ModelArtifacts() Ref {
	return StepRef(s.Name, "ModelArtifacts.S3ModelArtifacts")
}

func ruleConfigs(rules []DebugRule) []map[string]any {
	configs := make([]map[string]any, 0, len(rules))

	for _, rule := range rules {
		cfg := map[string]any{
			"RuleConfigurationName": rule.Name,
			"RuleEvaluatorImage":    rule.ImageURI,
		}
		if len(rule.Parameters) > 0 {
			cfg["RuleParameters"] = rule.Parameters
		}

		configs = append(configs, cfg)
	}

	return configs
}

func (s *TrainingStep) document() (stepDoc, error) {
	if s.Name == "" {
		return stepDoc{}, errors.Wrap(ErrEmptyName, "training step")
	}

	if s.Estimator.ImageURI == "" {
		return stepDoc{}, errors.Errorf("training step %s: image must be set", s.Name)
	}

	algoSpec := map[string]any{
		"TrainingImage":     s.Estimator.ImageURI,
		"TrainingInputMode": "File",
	}
	if len(s.Estimator.MetricDefinitions) > 0 {
		algoSpec["MetricDefinitions"] = s.Estimator.MetricDefinitions
	}

	maxRuntime := s.Estimator.MaxRuntime
	if maxRuntime == 0 {
		maxRuntime = time.Hour
	}

	args := map[string]any{
		"AlgorithmSpecification": algoSpec,
		"OutputDataConfig":       map[string]any{"S3OutputPath": s.Estimator.OutputPath},
		"ResourceConfig": map[string]any{
			"InstanceType":   s.Estimator.InstanceType,
			"InstanceCount":  s.Estimator.InstanceCount,
			"VolumeSizeInGB": s.Estimator.VolumeSizeGB,
		},
		"RoleArn":           s.Estimator.RoleARN,
		"StoppingCondition": map[string]any{"MaxRuntimeInSeconds": int(maxRuntime.Seconds())},
	}

	if len(s.Estimator.Hyperparameters) > 0 {
		hyper := make(map[string]any, len(s.Estimator.Hyperparameters))

		for name, value := range s.Estimator.Hyperparameters {
			switch value.(type) {
			case Ref, JSONGet, Join:
				hyper[name] = value
			default:
				hyper[name] = fmt.Sprintf("%v", value)
			}
		}

		args["HyperParameters"] = hyper
	}

	if len(s.Inputs) > 0 {
		channels := make([]map[string]any, 0, len(s.Inputs))

		for _, in := range s.Inputs {
			distribution := in.Distribution
			if distribution == "" {
				distribution = "FullyReplicated"
			}

			channel := map[string]any{
				"ChannelName": in.Channel,
				"DataSource": map[string]any{
					"S3DataSource": map[string]any{
						"S3Uri":                  in.Source,
						"S3DataType":             "S3Prefix",
						"S3DataDistributionType": distribution,
					},
				},
			}
			if in.ContentType != "" {
				channel["ContentType"] = in.ContentType
			}

			channels = append(channels, channel)
		}

		args["InputDataConfig"] = channels
	}

	if s.Estimator.CheckpointS3URI != "" {
		args["CheckpointConfig"] = map[string]any{"S3Uri": s.Estimator.CheckpointS3URI}
	}

	if len(s.Estimator.Environment) > 0 {
		args["Environment"] = s.Estimator.Environment
	}

	if s.Estimator.ProfilerS3OutputPath != "" {
		args["ProfilerConfig"] = map[string]any{"S3OutputPath": s.Estimator.ProfilerS3OutputPath}
	}

	if len(s.Estimator.DebugRules) > 0 {
		args["DebugRuleConfigurations"] = ruleConfigs(s.Estimator.DebugRules)
	}

	if len(s.Estimator.ProfilerRules) > 0 {
		args["ProfilerRuleConfigurations"] = ruleConfigs(s.Estimator.ProfilerRules)
	}

	return stepDoc{
		Name:      s.Name,
		Type:      s.Kind(),
		DependsOn: s.DependsOn,
		Arguments: args,
	}, nil
}
