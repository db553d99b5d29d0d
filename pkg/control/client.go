package control

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/aws/aws-sdk-go/service/sagemaker/sagemakeriface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client wraps the SageMaker API for pipeline operations.
type Client struct {
	sm  sagemakeriface.SageMakerAPI
	log logrus.FieldLogger
}

// New creates a client on top of an existing SageMaker API implementation.
func New(sm sagemakeriface.SageMakerAPI, log logrus.FieldLogger) *Client {
	return &Client{sm: sm, log: log}
}

// NewFromSession creates a client from an AWS session.
func NewFromSession(sess *session.Session, log logrus.FieldLogger) *Client {
	return New(sagemaker.New(sess), log)
}

func requestToken() string {
	buf := make([]byte, 16)
	// rand.Read only fails when the platform entropy source is broken, in
	// which case nothing else here works either.
	_, _ = rand.Read(buf)

	return hex.EncodeToString(buf)
}

// EnsurePipeline creates the pipeline if it does not exist, or updates it
// when the stored definition differs from the given one. It returns the
// pipeline ARN and whether the remote definition changed.
func (c *Client) EnsurePipeline(ctx context.Context, name, roleARN, description string, definition []byte) (string, bool, error) {
	out, err := c.sm.DescribePipelineWithContext(ctx, &sagemaker.DescribePipelineInput{
		PipelineName: aws.String(name),
	})

	switch {
	case err == nil:
		if aws.StringValue(out.PipelineDefinition) == string(definition) {
			c.log.WithField("pipeline", name).Debug("pipeline definition unchanged")

			return aws.StringValue(out.PipelineArn), false, nil
		}

		updated, err := c.sm.UpdatePipelineWithContext(ctx, &sagemaker.UpdatePipelineInput{
			PipelineName:       aws.String(name),
			PipelineDefinition: aws.String(string(definition)),
			RoleArn:            aws.String(roleARN),
		})
		if err != nil {
			return "", false, errors.Wrapf(err, "unable to update pipeline %s", name)
		}

		c.log.WithField("pipeline", name).Info("pipeline definition updated")

		return aws.StringValue(updated.PipelineArn), true, nil

	case IsNotFound(err):
		created, err := c.sm.CreatePipelineWithContext(ctx, &sagemaker.CreatePipelineInput{
			PipelineName:        aws.String(name),
			PipelineDefinition:  aws.String(string(definition)),
			PipelineDescription: aws.String(description),
			RoleArn:             aws.String(roleARN),
			ClientRequestToken:  aws.String(requestToken()),
		})
		if err != nil {
			return "", false, errors.Wrapf(err, "unable to create pipeline %s", name)
		}

		c.log.WithField("pipeline", name).Info("pipeline created")

		return aws.StringValue(created.PipelineArn), true, nil

	default:
		return "", false, errors.Wrapf(err, "unable to describe pipeline %s", name)
	}
}
