// Package lineage resolves what an execution actually produced: the
// evaluation report, the trained model artifact and its final metrics, and
// the debugger/profiler rule results attached to the training job.
package lineage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/aws/aws-sdk-go/service/sagemaker/sagemakeriface"
	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

var (
	ErrStepNotFound   = errors.New("execution has no such step")
	ErrNoJob          = errors.New("step has no backing job")
	ErrNoOutput       = errors.New("job declares no matching output")
	ErrNoCondition    = errors.New("execution has no condition step")
	ErrMalformedS3URI = errors.New("malformed s3 uri")
)

// Downloader fetches objects from S3. Satisfied by datasync.Transfer.
type Downloader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Resolver reads execution lineage through the control plane and S3.
type Resolver struct {
	SM    sagemakeriface.SageMakerAPI
	Store Downloader
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", errors.Wrap(ErrMalformedS3URI, uri)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Wrap(ErrMalformedS3URI, uri)
	}

	return bucket, key, nil
}

func jobName(arn string) string {
	if idx := strings.LastIndex(arn, "/"); idx >= 0 {
		return arn[idx+1:]
	}

	return arn
}

func findStep(steps []model.StepInfo, name string) (*model.StepInfo, error) {
	for i := range steps {
		if steps[i].Name == name {
			return &steps[i], nil
		}
	}

	return nil, errors.Wrap(ErrStepNotFound, name)
}

// EvaluationReport is the metrics document the evaluation step writes.
type EvaluationReport struct {
	Metrics struct {
		Accuracy struct {
			Value float64 `json:"value"`
		} `json:"accuracy"`
	} `json:"metrics"`
}

// EvaluationReport downloads and decodes the report written by the named
// evaluation step. outputName selects the processing output holding the
// report; fileName is the report file inside it.
func (r *Resolver) EvaluationReport(ctx context.Context, steps []model.StepInfo, stepName, outputName, fileName string) (*EvaluationReport, error) {
	step, err := findStep(steps, stepName)
	if err != nil {
		return nil, err
	}

	if step.JobARN == "" {
		return nil, errors.Wrap(ErrNoJob, stepName)
	}

	job, err := r.SM.DescribeProcessingJobWithContext(ctx, &sagemaker.DescribeProcessingJobInput{
		ProcessingJobName: aws.String(jobName(step.JobARN)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to describe processing job of step %s", stepName)
	}

	var reportURI string

	if job.ProcessingOutputConfig != nil {
		for _, output := range job.ProcessingOutputConfig.Outputs {
			if aws.StringValue(output.OutputName) != outputName || output.S3Output == nil {
				continue
			}

			reportURI = strings.TrimSuffix(aws.StringValue(output.S3Output.S3Uri), "/") + "/" + fileName

			break
		}
	}

	if reportURI == "" {
		return nil, errors.Wrapf(ErrNoOutput, "step %s output %s", stepName, outputName)
	}

	bucket, key, err := ParseS3URI(reportURI)
	if err != nil {
		return nil, err
	}

	raw, err := r.Store.Download(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	report := &EvaluationReport{}

	err = json.Unmarshal(raw, report)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode evaluation report %s", reportURI)
	}

	return report, nil
}

// ModelArtifact describes the trained model produced by a training step.
type ModelArtifact struct {
	S3URI        string
	FinalMetrics map[string]float64
}

// ModelArtifact resolves the artifact of the named training step.
func (r *Resolver) ModelArtifact(ctx context.Context, steps []model.StepInfo, stepName string) (*ModelArtifact, error) {
	step, err := findStep(steps, stepName)
	if err != nil {
		return nil, err
	}

	if step.JobARN == "" {
		return nil, errors.Wrap(ErrNoJob, stepName)
	}

	job, err := r.SM.DescribeTrainingJobWithContext(ctx, &sagemaker.DescribeTrainingJobInput{
		TrainingJobName: aws.String(jobName(step.JobARN)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to describe training job of step %s", stepName)
	}

	artifact := &ModelArtifact{FinalMetrics: make(map[string]float64)}

	if job.ModelArtifacts != nil {
		artifact.S3URI = aws.StringValue(job.ModelArtifacts.S3ModelArtifacts)
	}

	for _, metric := range job.FinalMetricDataList {
		artifact.FinalMetrics[aws.StringValue(metric.MetricName)] = aws.Float64Value(metric.Value)
	}

	return artifact, nil
}

// RuleResult is the outcome of one debugger or profiler rule evaluation.
type RuleResult struct {
	Rule    string
	Status  string
	Details string
}

// DebugReport collects the rule evaluations attached to a training job.
type DebugReport struct {
	DebugRules      []RuleResult
	ProfilerRules   []RuleResult
	ProfilerS3Path  string
	TrainingJobName string
}

// DebugReport resolves debugger and profiler results of the named training
// step.
func (r *Resolver) DebugReport(ctx context.Context, steps []model.StepInfo, stepName string) (*DebugReport, error) {
	step, err := findStep(steps, stepName)
	if err != nil {
		return nil, err
	}

	if step.JobARN == "" {
		return nil, errors.Wrap(ErrNoJob, stepName)
	}

	name := jobName(step.JobARN)

	job, err := r.SM.DescribeTrainingJobWithContext(ctx, &sagemaker.DescribeTrainingJobInput{
		TrainingJobName: aws.String(name),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to describe training job of step %s", stepName)
	}

	report := &DebugReport{TrainingJobName: name}

	for _, status := range job.DebugRuleEvaluationStatuses {
		report.DebugRules = append(report.DebugRules, RuleResult{
			Rule:    aws.StringValue(status.RuleConfigurationName),
			Status:  aws.StringValue(status.RuleEvaluationStatus),
			Details: aws.StringValue(status.StatusDetails),
		})
	}

	for _, status := range job.ProfilerRuleEvaluationStatuses {
		report.ProfilerRules = append(report.ProfilerRules, RuleResult{
			Rule:    aws.StringValue(status.RuleConfigurationName),
			Status:  aws.StringValue(status.RuleEvaluationStatus),
			Details: aws.StringValue(status.StatusDetails),
		})
	}

	if job.ProfilerConfig != nil {
		base := strings.TrimSuffix(aws.StringValue(job.ProfilerConfig.S3OutputPath), "/")
		if base != "" {
			report.ProfilerS3Path = base + "/" + name + "/profiler-output"
		}
	}

	return report, nil
}

// ConditionOutcome returns whether the gate of the execution held. The
// second return is false when the execution never reached a condition step.
func ConditionOutcome(steps []model.StepInfo) (bool, bool) {
	for i := range steps {
		if steps[i].Kind == model.ConditionStepKind && steps[i].Outcome != "" {
			return strings.EqualFold(steps[i].Outcome, "true"), true
		}
	}

	return false, false
}
