// Package reviews assembles the review-classifier pipeline: tokenize and
// split the review dataset, fine-tune the classifier, evaluate it, and
// register the model version only when it clears the accuracy gate.
package reviews

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/config"
	"github.com/modelrocket/sagerun/pkg/pipeline"
)

// Step names as they appear in the definition and in execution listings.
const (
	PrepareStepName   = "PrepareData"
	TrainStepName     = "TrainModel"
	EvaluateStepName  = "EvaluateModel"
	ConditionStepName = "CheckAccuracy"
	RegisterStepName  = "RegisterModel"
	CreateStepName    = "CreateModel"
)

// Parameter names overridable at execution start.
const (
	ParamInputData               = "InputDataURL"
	ParamProcessingInstanceType  = "ProcessingInstanceType"
	ParamProcessingInstanceCount = "ProcessingInstanceCount"
	ParamTrainingInstanceType    = "TrainingInstanceType"
	ParamTrainingInstanceCount   = "TrainingInstanceCount"
	ParamMaxSeqLength            = "MaxSeqLength"
	ParamLearningRate            = "LearningRate"
	ParamEpochs                  = "Epochs"
	ParamTrainBatchSize          = "TrainBatchSize"
	ParamMinAccuracy             = "MinAccuracy"
	ParamApprovalStatus          = "ModelApprovalStatus"
)

// MetricsOutputName is the processing output the evaluation report lands in.
const MetricsOutputName = "metrics"

// ReportFileName is the report file inside the metrics output.
const ReportFileName = "evaluation.json"

const (
	codeLocalPath  = "/opt/ml/processing/input/code"
	dataLocalPath  = "/opt/ml/processing/input/data"
	modelLocalPath = "/opt/ml/processing/input/model"
)

// Build assembles the pipeline from the run configuration.
func Build(cfg config.Config) (*pipeline.Pipeline, error) {
	pipe, err := pipeline.New(cfg.PipelineName,
		pipeline.WithDescription("review classifier fine-tuning pipeline"),
		pipeline.WithExperiment(cfg.ExperimentName, pipeline.ExecutionRef("PipelineExecutionId")),
	)
	if err != nil {
		return nil, err
	}

	err = pipe.AddParameters(
		pipeline.StringParameter(ParamInputData, "s3://"+cfg.Bucket+"/"+cfg.DataPrefix()),
		pipeline.StringParameter(ParamProcessingInstanceType, cfg.ProcessingInstanceType),
		pipeline.IntegerParameter(ParamProcessingInstanceCount, cfg.ProcessingInstanceCount),
		pipeline.StringParameter(ParamTrainingInstanceType, cfg.TrainingInstanceType),
		pipeline.IntegerParameter(ParamTrainingInstanceCount, cfg.TrainingInstanceCount),
		pipeline.IntegerParameter(ParamMaxSeqLength, cfg.Hyperparameters.MaxSeqLength),
		pipeline.FloatParameter(ParamLearningRate, cfg.Hyperparameters.LearningRate),
		pipeline.IntegerParameter(ParamEpochs, cfg.Hyperparameters.Epochs),
		pipeline.IntegerParameter(ParamTrainBatchSize, cfg.Hyperparameters.TrainBatchSize),
		pipeline.FloatParameter(ParamMinAccuracy, cfg.MinAccuracy),
		pipeline.StringParameter(ParamApprovalStatus, cfg.ApprovalStatus),
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to declare parameters")
	}

	prepare := prepareStep(cfg)
	train := trainStep(cfg, prepare)
	evaluate, reportFile := evaluateStep(cfg, train)
	gate := conditionStep(cfg, train, evaluate, reportFile)

	err = pipe.AddSteps(prepare, train, evaluate, gate)
	if err != nil {
		return nil, errors.Wrap(err, "unable to assemble pipeline")
	}

	return pipe, nil
}

func scriptURI(cfg config.Config, base string) string {
	return "s3://" + cfg.Bucket + "/" + cfg.ScriptPrefix() + base
}

func prepareStep(cfg config.Config) *pipeline.ProcessingStep {
	return &pipeline.ProcessingStep{
		Name: PrepareStepName,
		Processor: pipeline.Processor{
			ImageURI:      cfg.ProcessingImage,
			InstanceType:  pipeline.ParamRef(ParamProcessingInstanceType),
			InstanceCount: pipeline.ParamRef(ParamProcessingInstanceCount),
			VolumeSizeGB:  cfg.VolumeSizeGB,
			RoleARN:       cfg.RoleARN,
			Entrypoint:    []string{"python3", codeLocalPath + "/prepare_data.py"},
			Arguments: []string{
				"--train-split", fmt.Sprintf("%v", cfg.TrainSplit),
				"--validation-split", fmt.Sprintf("%v", cfg.ValidationSplit),
				"--max-seq-length", fmt.Sprintf("%d", cfg.Hyperparameters.MaxSeqLength),
			},
		},
		Inputs: []pipeline.ProcessingInput{
			{
				Name:         "data",
				Source:       pipeline.ParamRef(ParamInputData),
				Destination:  dataLocalPath,
				Distribution: "ShardedByS3Key",
			},
			{
				Name:        "code",
				Source:      scriptURI(cfg, "prepare_data.py"),
				Destination: codeLocalPath,
			},
		},
		Outputs: []pipeline.ProcessingOutput{
			{Name: "train", Source: "/opt/ml/processing/output/train", Destination: cfg.OutputPath() + "/train"},
			{Name: "validation", Source: "/opt/ml/processing/output/validation", Destination: cfg.OutputPath() + "/validation"},
			{Name: "test", Source: "/opt/ml/processing/output/test", Destination: cfg.OutputPath() + "/test"},
		},
	}
}

func trainStep(cfg config.Config, prepare *pipeline.ProcessingStep) *pipeline.TrainingStep {
	estimator := pipeline.Estimator{
		ImageURI:        cfg.TrainingImage,
		InstanceType:    pipeline.ParamRef(ParamTrainingInstanceType),
		InstanceCount:   pipeline.ParamRef(ParamTrainingInstanceCount),
		VolumeSizeGB:    cfg.VolumeSizeGB,
		RoleARN:         cfg.RoleARN,
		OutputPath:      cfg.OutputPath() + "/model",
		CheckpointS3URI: "s3://" + cfg.Bucket + "/" + cfg.Prefix + "/checkpoints",
		Hyperparameters: map[string]any{
			"max_seq_length":        pipeline.ParamRef(ParamMaxSeqLength),
			"learning_rate":         pipeline.ParamRef(ParamLearningRate),
			"epochs":                pipeline.ParamRef(ParamEpochs),
			"train_batch_size":      pipeline.ParamRef(ParamTrainBatchSize),
			"validation_batch_size": cfg.Hyperparameters.ValidationBatchSize,
			"test_batch_size":       cfg.Hyperparameters.TestBatchSize,
			"train_steps_per_epoch": cfg.Hyperparameters.TrainSteps,
			"freeze_base_layers":    cfg.Hyperparameters.FreezeBaseLayers,
		},
		MetricDefinitions: []pipeline.MetricDefinition{
			{Name: "validation:accuracy", Regex: `val_accuracy: ([0-9\.]+)`},
			{Name: "validation:loss", Regex: `val_loss: ([0-9\.]+)`},
		},
		MaxRuntime:           4 * time.Hour,
		ProfilerS3OutputPath: cfg.OutputPath() + "/profiler",
	}

	if cfg.RuleEvaluatorImage != "" {
		estimator.ProfilerRules = []pipeline.DebugRule{
			{Name: "ProfilerReport", ImageURI: cfg.RuleEvaluatorImage, Parameters: map[string]string{"rule_to_invoke": "ProfilerReport"}},
		}
		estimator.DebugRules = []pipeline.DebugRule{
			{Name: "LossNotDecreasing", ImageURI: cfg.RuleEvaluatorImage, Parameters: map[string]string{"rule_to_invoke": "LossNotDecreasing"}},
		}
	}

	return &pipeline.TrainingStep{
		Name:      TrainStepName,
		Estimator: estimator,
		DependsOn: []string{prepare.Name},
		Inputs: []pipeline.TrainingInput{
			{Channel: "train", Source: prepare.OutputRef("train"), ContentType: "text/csv"},
			{Channel: "validation", Source: prepare.OutputRef("validation"), ContentType: "text/csv"},
		},
	}
}

func evaluateStep(cfg config.Config, train *pipeline.TrainingStep) (*pipeline.ProcessingStep, pipeline.PropertyFile) {
	reportFile := pipeline.PropertyFile{
		PropertyFileName: "EvaluationReport",
		OutputName:       MetricsOutputName,
		FilePath:         ReportFileName,
	}

	step := &pipeline.ProcessingStep{
		Name: EvaluateStepName,
		Processor: pipeline.Processor{
			ImageURI:      cfg.ProcessingImage,
			InstanceType:  pipeline.ParamRef(ParamProcessingInstanceType),
			InstanceCount: 1,
			VolumeSizeGB:  cfg.VolumeSizeGB,
			RoleARN:       cfg.RoleARN,
			Entrypoint:    []string{"python3", codeLocalPath + "/evaluate_model.py"},
			Arguments: []string{
				"--max-seq-length", fmt.Sprintf("%d", cfg.Hyperparameters.MaxSeqLength),
			},
		},
		Inputs: []pipeline.ProcessingInput{
			{Name: "model", Source: train.ModelArtifacts(), Destination: modelLocalPath},
			{Name: "code", Source: scriptURI(cfg, "evaluate_model.py"), Destination: codeLocalPath},
			{Name: "test", Source: pipeline.ParamRef(ParamInputData), Destination: dataLocalPath},
		},
		Outputs: []pipeline.ProcessingOutput{
			{Name: MetricsOutputName, Source: "/opt/ml/processing/output/metrics", Destination: cfg.OutputPath() + "/evaluation"},
		},
		PropertyFiles: []pipeline.PropertyFile{reportFile},
		DependsOn:     []string{train.Name},
	}

	return step, reportFile
}

func conditionStep(cfg config.Config, train *pipeline.TrainingStep, evaluate *pipeline.ProcessingStep, reportFile pipeline.PropertyFile) *pipeline.ConditionStep {
	register := &pipeline.RegisterModelStep{
		Name:              RegisterStepName,
		ModelPackageGroup: cfg.ModelPackageGroup,
		ImageURI:          cfg.InferenceImage,
		ModelDataURL:      train.ModelArtifacts(),
		ContentTypes:      []string{"application/jsonlines"},
		ResponseTypes:     []string{"application/jsonlines"},
		InferenceTypes:    []string{cfg.DeployInstanceType},
		TransformTypes:    []string{cfg.DeployInstanceType},
		ApprovalStatus:    pipeline.ParamRef(ParamApprovalStatus),
		Metrics: &pipeline.ModelMetrics{
			Statistics: pipeline.FileSource{
				ContentType: "application/json",
				S3URI:       cfg.OutputPath() + "/evaluation/" + ReportFileName,
			},
		},
	}

	create := &pipeline.CreateModelStep{
		Name:         CreateStepName,
		ImageURI:     cfg.InferenceImage,
		ModelDataURL: train.ModelArtifacts(),
		RoleARN:      cfg.RoleARN,
	}

	return &pipeline.ConditionStep{
		Name: ConditionStepName,
		Conditions: []pipeline.Condition{{
			Type: pipeline.ConditionGreaterThanOrEqualTo,
			Left: pipeline.JSONGet{
				PropertyFile: reportFile.Ref(evaluate.Name),
				Path:         "metrics.accuracy.value",
			},
			Right: pipeline.ParamRef(ParamMinAccuracy),
		}},
		IfSteps:   []pipeline.Step{register, create},
		DependsOn: []string{evaluate.Name},
	}
}
