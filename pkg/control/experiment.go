package control

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/pkg/errors"
)

// EnsureExperiment creates the experiment unless it already exists and
// returns its ARN. Absence is detected explicitly; any other describe
// failure propagates instead of being treated as "missing".
func (c *Client) EnsureExperiment(ctx context.Context, name, description string) (string, error) {
	out, err := c.sm.DescribeExperimentWithContext(ctx, &sagemaker.DescribeExperimentInput{
		ExperimentName: aws.String(name),
	})

	switch {
	case err == nil:
		return aws.StringValue(out.ExperimentArn), nil
	case IsNotFound(err):
	default:
		return "", errors.Wrapf(err, "unable to describe experiment %s", name)
	}

	created, err := c.sm.CreateExperimentWithContext(ctx, &sagemaker.CreateExperimentInput{
		ExperimentName: aws.String(name),
		Description:    aws.String(description),
	})

	switch {
	case err == nil:
		c.log.WithField("experiment", name).Info("experiment created")

		return aws.StringValue(created.ExperimentArn), nil
	case IsResourceInUse(err):
		// Lost a creation race; the experiment exists now.
		existing, err := c.sm.DescribeExperimentWithContext(ctx, &sagemaker.DescribeExperimentInput{
			ExperimentName: aws.String(name),
		})
		if err != nil {
			return "", errors.Wrapf(err, "unable to describe experiment %s after create race", name)
		}

		return aws.StringValue(existing.ExperimentArn), nil
	default:
		return "", errors.Wrapf(err, "unable to create experiment %s", name)
	}
}

// EnsureTrial creates a trial inside an experiment unless it already exists
// and returns its ARN.
func (c *Client) EnsureTrial(ctx context.Context, experimentName, trialName string) (string, error) {
	out, err := c.sm.DescribeTrialWithContext(ctx, &sagemaker.DescribeTrialInput{
		TrialName: aws.String(trialName),
	})

	switch {
	case err == nil:
		return aws.StringValue(out.TrialArn), nil
	case IsNotFound(err):
	default:
		return "", errors.Wrapf(err, "unable to describe trial %s", trialName)
	}

	created, err := c.sm.CreateTrialWithContext(ctx, &sagemaker.CreateTrialInput{
		TrialName:      aws.String(trialName),
		ExperimentName: aws.String(experimentName),
	})

	switch {
	case err == nil:
		c.log.WithField("trial", trialName).Info("trial created")

		return aws.StringValue(created.TrialArn), nil
	case IsResourceInUse(err):
		existing, err := c.sm.DescribeTrialWithContext(ctx, &sagemaker.DescribeTrialInput{
			TrialName: aws.String(trialName),
		})
		if err != nil {
			return "", errors.Wrapf(err, "unable to describe trial %s after create race", trialName)
		}

		return aws.StringValue(existing.TrialArn), nil
	default:
		return "", errors.Wrapf(err, "unable to create trial %s", trialName)
	}
}
