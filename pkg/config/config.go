// Package config loads the YAML run configuration.
package config

import (
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

var (
	ErrMissingField = errors.New("required field missing")
	ErrOutOfRange   = errors.New("value out of range")
)

// Hyperparameters are the knobs of the fine-tuning job.
type Hyperparameters struct {
	MaxSeqLength        int     `json:"MaxSeqLength"`
	LearningRate        float64 `json:"LearningRate"`
	Epochs              int     `json:"Epochs"`
	TrainBatchSize      int     `json:"TrainBatchSize"`
	ValidationBatchSize int     `json:"ValidationBatchSize"`
	TestBatchSize       int     `json:"TestBatchSize"`
	TrainSteps          int     `json:"TrainSteps"`
	FreezeBaseLayers    bool    `json:"FreezeBaseLayers"`
}

// Scripts are the local entrypoints uploaded for the managed jobs to run.
type Scripts struct {
	Process  string `json:"Process"`
	Train    string `json:"Train"`
	Evaluate string `json:"Evaluate"`
}

// Config is the full run configuration.
type Config struct {
	Region  string `json:"Region"`
	RoleARN string `json:"RoleARN"`

	Bucket string `json:"Bucket"`
	Prefix string `json:"Prefix"`

	SourceBucket string `json:"SourceBucket"`
	SourcePrefix string `json:"SourcePrefix"`

	PipelineName      string `json:"PipelineName"`
	ExperimentName    string `json:"ExperimentName"`
	ModelPackageGroup string `json:"ModelPackageGroup"`

	ProcessingImage string `json:"ProcessingImage"`
	TrainingImage   string `json:"TrainingImage"`
	InferenceImage  string `json:"InferenceImage"`

	// RuleEvaluatorImage runs the debugger/profiler rules next to the
	// training job. Rules are skipped when empty.
	RuleEvaluatorImage string `json:"RuleEvaluatorImage"`

	ProcessingInstanceType  string `json:"ProcessingInstanceType"`
	ProcessingInstanceCount int    `json:"ProcessingInstanceCount"`
	TrainingInstanceType    string `json:"TrainingInstanceType"`
	TrainingInstanceCount   int    `json:"TrainingInstanceCount"`
	DeployInstanceType      string `json:"DeployInstanceType"`
	VolumeSizeGB            int    `json:"VolumeSizeGB"`

	Hyperparameters Hyperparameters `json:"Hyperparameters"`
	Scripts         Scripts         `json:"Scripts"`

	// TrainSplit and ValidationSplit are fractions of the dataset; the
	// remainder becomes the test split.
	TrainSplit      float64 `json:"TrainSplit"`
	ValidationSplit float64 `json:"ValidationSplit"`

	MinAccuracy    float64 `json:"MinAccuracy"`
	ApprovalStatus string  `json:"ApprovalStatus"`

	PollInterval Duration `json:"PollInterval"`
	WatchTimeout Duration `json:"WatchTimeout"`

	LogLevel  string `json:"LogLevel"`
	LogFormat string `json:"LogFormat"`
}

// Default returns the configuration used when a field is not set in the
// file.
func Default() Config {
	return Config{
		Region:                  "us-east-1",
		Prefix:                  "reviews",
		SourcePrefix:            "amazon-reviews-pds/tsv/",
		PipelineName:            "review-classifier",
		ExperimentName:          "review-classifier",
		ModelPackageGroup:       "review-classifier",
		ProcessingInstanceType:  "ml.c5.2xlarge",
		ProcessingInstanceCount: 1,
		TrainingInstanceType:    "ml.c5.9xlarge",
		TrainingInstanceCount:   1,
		DeployInstanceType:      "ml.m5.large",
		VolumeSizeGB:            50,
		Hyperparameters: Hyperparameters{
			MaxSeqLength:        64,
			LearningRate:        1e-5,
			Epochs:              1,
			TrainBatchSize:      128,
			ValidationBatchSize: 128,
			TestBatchSize:       128,
			TrainSteps:          100,
			FreezeBaseLayers:    true,
		},
		Scripts: Scripts{
			Process:  "scripts/prepare_data.py",
			Train:    "scripts/train_model.py",
			Evaluate: "scripts/evaluate_model.py",
		},
		TrainSplit:      0.9,
		ValidationSplit: 0.05,
		MinAccuracy:     0.3,
		ApprovalStatus:  "PendingManualApproval",
		PollInterval:    Duration(30e9),
		WatchTimeout:    Duration(2 * 3600e9),
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "unable to read config %s", path)
		}

		err = yaml.Unmarshal(raw, &cfg)
		if err != nil {
			return Config{}, errors.Wrapf(err, "unable to parse config %s", path)
		}
	}

	err := cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the fields no default can supply and the numeric ranges.
func (c *Config) Validate() error {
	required := map[string]string{
		"RoleARN": c.RoleARN,
		"Bucket":  c.Bucket,
	}

	for name, value := range required {
		if value == "" {
			return errors.Wrap(ErrMissingField, name)
		}
	}

	if c.MinAccuracy < 0 || c.MinAccuracy > 1 {
		return errors.Wrap(ErrOutOfRange, "MinAccuracy must be within [0, 1]")
	}

	if c.TrainSplit <= 0 || c.ValidationSplit <= 0 || c.TrainSplit+c.ValidationSplit >= 1 {
		return errors.Wrap(ErrOutOfRange, "TrainSplit and ValidationSplit must leave room for a test split")
	}

	if c.ProcessingInstanceCount < 1 || c.TrainingInstanceCount < 1 {
		return errors.Wrap(ErrOutOfRange, "instance counts must be at least 1")
	}

	return nil
}

// DataPrefix is the S3 prefix the raw dataset is copied to.
func (c *Config) DataPrefix() string {
	return c.Prefix + "/data/"
}

// ScriptPrefix is the S3 prefix job scripts are uploaded to.
func (c *Config) ScriptPrefix() string {
	return c.Prefix + "/code/"
}

// OutputPath is the S3 URI training and evaluation outputs land under.
func (c *Config) OutputPath() string {
	return "s3://" + c.Bucket + "/" + c.Prefix + "/output"
}
