package control

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/pkg/errors"
)

// ModelPackage is the normalized view of a registered model version.
type ModelPackage struct {
	ARN            string
	Version        int64
	ApprovalStatus string
	CreatedAt      time.Time
}

// EnsureModelPackageGroup creates the model package group unless it already
// exists and returns its ARN.
func (c *Client) EnsureModelPackageGroup(ctx context.Context, name, description string) (string, error) {
	out, err := c.sm.DescribeModelPackageGroupWithContext(ctx, &sagemaker.DescribeModelPackageGroupInput{
		ModelPackageGroupName: aws.String(name),
	})

	switch {
	case err == nil:
		return aws.StringValue(out.ModelPackageGroupArn), nil
	case IsNotFound(err):
	default:
		return "", errors.Wrapf(err, "unable to describe model package group %s", name)
	}

	created, err := c.sm.CreateModelPackageGroupWithContext(ctx, &sagemaker.CreateModelPackageGroupInput{
		ModelPackageGroupName:        aws.String(name),
		ModelPackageGroupDescription: aws.String(description),
	})
	if err != nil {
		if IsResourceInUse(err) {
			existing, err := c.sm.DescribeModelPackageGroupWithContext(ctx, &sagemaker.DescribeModelPackageGroupInput{
				ModelPackageGroupName: aws.String(name),
			})
			if err != nil {
				return "", errors.Wrapf(err, "unable to describe model package group %s after create race", name)
			}

			return aws.StringValue(existing.ModelPackageGroupArn), nil
		}

		return "", errors.Wrapf(err, "unable to create model package group %s", name)
	}

	c.log.WithField("group", name).Info("model package group created")

	return aws.StringValue(created.ModelPackageGroupArn), nil
}

// LatestModelPackage returns the newest model version in a group.
func (c *Client) LatestModelPackage(ctx context.Context, group string) (ModelPackage, error) {
	out, err := c.sm.ListModelPackagesWithContext(ctx, &sagemaker.ListModelPackagesInput{
		ModelPackageGroupName: aws.String(group),
		SortBy:                aws.String("CreationTime"),
		SortOrder:             aws.String("Descending"),
		MaxResults:            aws.Int64(1),
	})
	if err != nil {
		return ModelPackage{}, errors.Wrapf(err, "unable to list model packages of group %s", group)
	}

	if len(out.ModelPackageSummaryList) == 0 {
		return ModelPackage{}, errors.Wrap(ErrNoModelPackages, group)
	}

	summary := out.ModelPackageSummaryList[0]

	return ModelPackage{
		ARN:            aws.StringValue(summary.ModelPackageArn),
		Version:        aws.Int64Value(summary.ModelPackageVersion),
		ApprovalStatus: aws.StringValue(summary.ModelApprovalStatus),
		CreatedAt:      aws.TimeValue(summary.CreationTime),
	}, nil
}

// ApproveModelPackage flips a model version to Approved, typically after a
// human has reviewed a PendingManualApproval registration.
func (c *Client) ApproveModelPackage(ctx context.Context, modelPackageARN string) error {
	_, err := c.sm.UpdateModelPackageWithContext(ctx, &sagemaker.UpdateModelPackageInput{
		ModelPackageArn:     aws.String(modelPackageARN),
		ModelApprovalStatus: aws.String("Approved"),
	})
	if err != nil {
		return errors.Wrapf(err, "unable to approve model package %s", modelPackageARN)
	}

	c.log.WithField("model_package", modelPackageARN).Info("model package approved")

	return nil
}
