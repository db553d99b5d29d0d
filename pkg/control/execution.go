package control

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/pipeline"
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// ExecutionStatus is the vendor status of a pipeline execution.
type ExecutionStatus string

const (
	ExecutionExecuting ExecutionStatus = "Executing"
	ExecutionStopping  ExecutionStatus = "Stopping"
	ExecutionStopped   ExecutionStatus = "Stopped"
	ExecutionFailed    ExecutionStatus = "Failed"
	ExecutionSucceeded ExecutionStatus = "Succeeded"
)

// Terminal reports whether the execution has finished.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionFailed, ExecutionStopped:
		return true
	}

	return false
}

// Execution is the normalized view of a pipeline execution.
type Execution struct {
	ARN           string
	DisplayName   string
	Status        ExecutionStatus
	FailureReason string
}

// StartRequest describes an execution start.
type StartRequest struct {
	PipelineName string
	DisplayName  string
	Description  string

	// Declared is the parameter set of the submitted definition; every
	// override must name one of them.
	Declared []pipeline.Parameter

	// Overrides replace parameter defaults for this execution only.
	Overrides map[string]string
}

// StartExecution starts a pipeline execution. Overrides are checked against
// the declared parameters before any API call, so a typo fails fast instead
// of surfacing as a remote validation error minutes later.
func (c *Client) StartExecution(ctx context.Context, req StartRequest) (string, error) {
	declared := make(map[string]struct{}, len(req.Declared))
	for _, param := range req.Declared {
		declared[param.Name] = struct{}{}
	}

	names := make([]string, 0, len(req.Overrides))
	for name := range req.Overrides {
		if _, ok := declared[name]; !ok {
			return "", errors.Wrapf(ErrUnknownParameter, "%s", name)
		}

		names = append(names, name)
	}

	sort.Strings(names)

	params := make([]*sagemaker.Parameter, 0, len(names))
	for _, name := range names {
		params = append(params, &sagemaker.Parameter{
			Name:  aws.String(name),
			Value: aws.String(req.Overrides[name]),
		})

		c.log.WithField("parameter", name).WithField("value", req.Overrides[name]).Debug("parameter override")
	}

	input := &sagemaker.StartPipelineExecutionInput{
		PipelineName:       aws.String(req.PipelineName),
		PipelineParameters: params,
		ClientRequestToken: aws.String(requestToken()),
	}

	// Both fields carry a client-side minimum length of 1, so they must stay
	// unset rather than empty.
	if req.DisplayName != "" {
		input.PipelineExecutionDisplayName = aws.String(req.DisplayName)
	}

	if req.Description != "" {
		input.PipelineExecutionDescription = aws.String(req.Description)
	}

	out, err := c.sm.StartPipelineExecutionWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrapf(err, "unable to start execution of pipeline %s", req.PipelineName)
	}

	arn := aws.StringValue(out.PipelineExecutionArn)
	c.log.WithField("pipeline", req.PipelineName).WithField("execution", arn).Info("execution started")

	return arn, nil
}

// DescribeExecution fetches the current state of an execution.
func (c *Client) DescribeExecution(ctx context.Context, executionARN string) (Execution, error) {
	out, err := c.sm.DescribePipelineExecutionWithContext(ctx, &sagemaker.DescribePipelineExecutionInput{
		PipelineExecutionArn: aws.String(executionARN),
	})
	if err != nil {
		return Execution{}, errors.Wrapf(err, "unable to describe execution %s", executionARN)
	}

	return Execution{
		ARN:           aws.StringValue(out.PipelineExecutionArn),
		DisplayName:   aws.StringValue(out.PipelineExecutionDisplayName),
		Status:        ExecutionStatus(aws.StringValue(out.PipelineExecutionStatus)),
		FailureReason: aws.StringValue(out.FailureReason),
	}, nil
}

// StopExecution asks the service to stop a running execution.
func (c *Client) StopExecution(ctx context.Context, executionARN string) error {
	_, err := c.sm.StopPipelineExecutionWithContext(ctx, &sagemaker.StopPipelineExecutionInput{
		PipelineExecutionArn: aws.String(executionARN),
		ClientRequestToken:   aws.String(requestToken()),
	})
	if err != nil {
		return errors.Wrapf(err, "unable to stop execution %s", executionARN)
	}

	return nil
}

// EffectiveParameters returns the parameter values the execution actually
// ran with, defaults and overrides merged by the service.
func (c *Client) EffectiveParameters(ctx context.Context, executionARN string) (map[string]string, error) {
	params := make(map[string]string)

	input := &sagemaker.ListPipelineParametersForExecutionInput{
		PipelineExecutionArn: aws.String(executionARN),
	}

	for {
		out, err := c.sm.ListPipelineParametersForExecutionWithContext(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list parameters of execution %s", executionARN)
		}

		for _, param := range out.PipelineParameters {
			params[aws.StringValue(param.Name)] = aws.StringValue(param.Value)
		}

		if aws.StringValue(out.NextToken) == "" {
			return params, nil
		}

		input.NextToken = out.NextToken
	}
}

func stepKind(meta *sagemaker.PipelineExecutionStepMetadata) (model.StepKind, string, string) {
	if meta == nil {
		return "", "", ""
	}

	switch {
	case meta.ProcessingJob != nil:
		return model.ProcessingStepKind, aws.StringValue(meta.ProcessingJob.Arn), ""
	case meta.TrainingJob != nil:
		return model.TrainingStepKind, aws.StringValue(meta.TrainingJob.Arn), ""
	case meta.Condition != nil:
		return model.ConditionStepKind, "", aws.StringValue(meta.Condition.Outcome)
	case meta.RegisterModel != nil:
		return model.RegisterModelStepKind, aws.StringValue(meta.RegisterModel.Arn), ""
	case meta.Model != nil:
		return model.CreateModelStepKind, aws.StringValue(meta.Model.Arn), ""
	}

	return "", "", ""
}

// ListExecutionSteps returns the steps of an execution in start order.
func (c *Client) ListExecutionSteps(ctx context.Context, executionARN string) ([]model.StepInfo, error) {
	infos := make([]model.StepInfo, 0)

	input := &sagemaker.ListPipelineExecutionStepsInput{
		PipelineExecutionArn: aws.String(executionARN),
		SortOrder:            aws.String("Ascending"),
	}

	for {
		out, err := c.sm.ListPipelineExecutionStepsWithContext(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list steps of execution %s", executionARN)
		}

		for _, step := range out.PipelineExecutionSteps {
			kind, jobARN, outcome := stepKind(step.Metadata)

			info := model.StepInfo{
				Name:          aws.StringValue(step.StepName),
				Kind:          kind,
				Status:        model.StepStatus(aws.StringValue(step.StepStatus)),
				StartedAt:     aws.TimeValue(step.StartTime),
				EndedAt:       aws.TimeValue(step.EndTime),
				FailureReason: aws.StringValue(step.FailureReason),
				JobARN:        jobARN,
				Outcome:       outcome,
			}
			infos = append(infos, info)
		}

		if aws.StringValue(out.NextToken) == "" {
			break
		}

		input.NextToken = out.NextToken
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})

	return infos, nil
}
