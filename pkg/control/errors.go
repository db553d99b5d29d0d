package control

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/pkg/errors"
)

var (
	ErrUnknownParameter = errors.New("override does not match any declared parameter")
	ErrWatchTimeout     = errors.New("execution did not finish in time")
	ErrNoModelPackages  = errors.New("model package group is empty")
)

// IsNotFound reports whether err means the addressed resource does not
// exist. Only this condition may be treated as "create it"; anything else
// propagates.
func IsNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}

	switch aerr.Code() {
	case sagemaker.ErrCodeResourceNotFound:
		return true
	case "ValidationException":
		// Pipeline describe reports absence as a validation error.
		return strings.Contains(aerr.Message(), "does not exist")
	}

	return false
}

// IsResourceInUse reports whether err means the resource already exists,
// which can happen when an Ensure call races another creator.
func IsResourceInUse(err error) bool {
	var aerr awserr.Error

	return errors.As(err, &aerr) && aerr.Code() == sagemaker.ErrCodeResourceInUse
}

// IsRetryable reports whether err is worth retrying on the next poll:
// throttling and transient transport failures qualify, permission and
// validation errors do not.
func IsRetryable(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}

	switch aerr.Code() {
	case "Throttling", "ThrottlingException", "ThrottledException",
		"TooManyRequestsException", "RequestLimitExceeded",
		"RequestError", "RequestTimeout", "ResponseTimeout",
		"ServiceUnavailable", "InternalFailure":
		return true
	}

	return false
}
