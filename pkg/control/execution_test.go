package control_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrocket/sagerun/pkg/control"
	"github.com/modelrocket/sagerun/pkg/pipeline"
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

func TestStartExecutionRejectsUnknownOverride(t *testing.T) {
	t.Parallel()

	client := testClient(&fakeSM{})

	_, err := client.StartExecution(context.Background(), control.StartRequest{
		PipelineName: "review-classifier",
		Declared:     []pipeline.Parameter{pipeline.StringParameter("InputDataURL", "s3://bucket/data")},
		Overrides:    map[string]string{"InputDataUrl": "s3://other/data"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, control.ErrUnknownParameter)
	assert.Contains(t, err.Error(), "InputDataUrl")
}

func TestStartExecutionPassesOverrides(t *testing.T) {
	t.Parallel()

	var started *sagemaker.StartPipelineExecutionInput

	fake := &fakeSM{
		startExecution: func(in *sagemaker.StartPipelineExecutionInput) (*sagemaker.StartPipelineExecutionOutput, error) {
			started = in

			return &sagemaker.StartPipelineExecutionOutput{
				PipelineExecutionArn: aws.String("arn:execution/1"),
			}, nil
		},
	}

	arn, err := testClient(fake).StartExecution(context.Background(), control.StartRequest{
		PipelineName: "review-classifier",
		DisplayName:  "nightly",
		Declared: []pipeline.Parameter{
			pipeline.StringParameter("InputDataURL", "s3://bucket/data"),
			pipeline.IntegerParameter("Epochs", 3),
		},
		Overrides: map[string]string{
			"Epochs":       "5",
			"InputDataURL": "s3://other/data",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:execution/1", arn)

	require.NotNil(t, started)
	assert.Equal(t, "review-classifier", aws.StringValue(started.PipelineName))
	assert.NotEmpty(t, aws.StringValue(started.ClientRequestToken))

	// Overrides are sent in name order.
	require.Len(t, started.PipelineParameters, 2)
	assert.Equal(t, "Epochs", aws.StringValue(started.PipelineParameters[0].Name))
	assert.Equal(t, "5", aws.StringValue(started.PipelineParameters[0].Value))
	assert.Equal(t, "InputDataURL", aws.StringValue(started.PipelineParameters[1].Name))
}

func TestStartExecutionOmitsEmptyOptionalFields(t *testing.T) {
	t.Parallel()

	fake := &fakeSM{
		startExecution: func(in *sagemaker.StartPipelineExecutionInput) (*sagemaker.StartPipelineExecutionOutput, error) {
			// The SDK enforces a minimum length of 1 on the display name and
			// description, so empty values must be left unset.
			if err := in.Validate(); err != nil {
				return nil, err
			}

			assert.Nil(t, in.PipelineExecutionDisplayName)
			assert.Nil(t, in.PipelineExecutionDescription)

			return &sagemaker.StartPipelineExecutionOutput{
				PipelineExecutionArn: aws.String("arn:execution/1"),
			}, nil
		},
	}

	arn, err := testClient(fake).StartExecution(context.Background(), control.StartRequest{
		PipelineName: "review-classifier",
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:execution/1", arn)
}

func TestDescribeExecution(t *testing.T) {
	t.Parallel()

	fake := &fakeSM{
		describeExecution: func(in *sagemaker.DescribePipelineExecutionInput) (*sagemaker.DescribePipelineExecutionOutput, error) {
			assert.Equal(t, "arn:execution/1", aws.StringValue(in.PipelineExecutionArn))

			return &sagemaker.DescribePipelineExecutionOutput{
				PipelineExecutionArn:         aws.String("arn:execution/1"),
				PipelineExecutionDisplayName: aws.String("nightly"),
				PipelineExecutionStatus:      aws.String("Failed"),
				FailureReason:                aws.String("step evaluate failed"),
			}, nil
		},
	}

	execution, err := testClient(fake).DescribeExecution(context.Background(), "arn:execution/1")
	require.NoError(t, err)
	assert.Equal(t, control.ExecutionFailed, execution.Status)
	assert.True(t, execution.Status.Terminal())
	assert.Equal(t, "step evaluate failed", execution.FailureReason)
}

func TestEffectiveParametersPaginates(t *testing.T) {
	t.Parallel()

	calls := 0

	fake := &fakeSM{
		listParameters: func(in *sagemaker.ListPipelineParametersForExecutionInput) (*sagemaker.ListPipelineParametersForExecutionOutput, error) {
			calls++
			if calls == 1 {
				assert.Nil(t, in.NextToken)

				return &sagemaker.ListPipelineParametersForExecutionOutput{
					PipelineParameters: []*sagemaker.Parameter{
						{Name: aws.String("Epochs"), Value: aws.String("5")},
					},
					NextToken: aws.String("page2"),
				}, nil
			}

			assert.Equal(t, "page2", aws.StringValue(in.NextToken))

			return &sagemaker.ListPipelineParametersForExecutionOutput{
				PipelineParameters: []*sagemaker.Parameter{
					{Name: aws.String("MinAccuracy"), Value: aws.String("0.3")},
				},
			}, nil
		},
	}

	params, err := testClient(fake).EffectiveParameters(context.Background(), "arn:execution/1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, map[string]string{"Epochs": "5", "MinAccuracy": "0.3"}, params)
}

func TestListExecutionStepsMapsMetadata(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	fake := &fakeSM{
		listSteps: func(in *sagemaker.ListPipelineExecutionStepsInput) (*sagemaker.ListPipelineExecutionStepsOutput, error) {
			assert.Equal(t, "Ascending", aws.StringValue(in.SortOrder))

			return &sagemaker.ListPipelineExecutionStepsOutput{
				PipelineExecutionSteps: []*sagemaker.PipelineExecutionStep{
					{
						StepName:   aws.String("check-accuracy"),
						StepStatus: aws.String("Succeeded"),
						StartTime:  aws.Time(start.Add(10 * time.Minute)),
						EndTime:    aws.Time(start.Add(11 * time.Minute)),
						Metadata: &sagemaker.PipelineExecutionStepMetadata{
							Condition: &sagemaker.ConditionStepMetadata{Outcome: aws.String("True")},
						},
					},
					{
						StepName:   aws.String("train-model"),
						StepStatus: aws.String("Succeeded"),
						StartTime:  aws.Time(start),
						EndTime:    aws.Time(start.Add(9 * time.Minute)),
						Metadata: &sagemaker.PipelineExecutionStepMetadata{
							TrainingJob: &sagemaker.TrainingJobStepMetadata{Arn: aws.String("arn:training-job/1")},
						},
					},
				},
			}, nil
		},
	}

	steps, err := testClient(fake).ListExecutionSteps(context.Background(), "arn:execution/1")
	require.NoError(t, err)
	require.Len(t, steps, 2)

	// Stable start-time order regardless of the service's ordering.
	assert.Equal(t, "train-model", steps[0].Name)
	assert.Equal(t, model.TrainingStepKind, steps[0].Kind)
	assert.Equal(t, "arn:training-job/1", steps[0].JobARN)

	assert.Equal(t, "check-accuracy", steps[1].Name)
	assert.Equal(t, model.ConditionStepKind, steps[1].Kind)
	assert.Equal(t, "True", steps[1].Outcome)
}

func TestStopExecution(t *testing.T) {
	t.Parallel()

	stopped := false

	fake := &fakeSM{
		stopExecution: func(in *sagemaker.StopPipelineExecutionInput) (*sagemaker.StopPipelineExecutionOutput, error) {
			stopped = true
			assert.NotEmpty(t, aws.StringValue(in.ClientRequestToken))

			return &sagemaker.StopPipelineExecutionOutput{}, nil
		},
	}

	require.NoError(t, testClient(fake).StopExecution(context.Background(), "arn:execution/1"))
	assert.True(t, stopped)
}
