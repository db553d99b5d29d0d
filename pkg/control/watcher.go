package control

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultErrorBudget  = 5
)

// Watcher polls an execution until it reaches a terminal status. Polling
// runs on a fixed interval; throttling and transient API failures are
// tolerated up to ErrorBudget consecutive times, anything else ends the
// watch immediately.
type Watcher struct {
	Client *Client

	// Interval between polls. Defaults to 30s, the rate the control plane
	// is comfortable with.
	Interval time.Duration

	// Timeout bounds the whole watch. Zero means no bound beyond ctx.
	Timeout time.Duration

	// ErrorBudget is the number of consecutive retryable errors tolerated
	// before giving up. Defaults to 5.
	ErrorBudget int
}

// Wait blocks until the execution finishes, the context is cancelled, or
// the timeout elapses. It returns the final execution state.
func (w *Watcher) Wait(ctx context.Context, executionARN string) (Execution, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	budget := w.ErrorBudget
	if budget <= 0 {
		budget = defaultErrorBudget
	}

	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, w.Timeout, ErrWatchTimeout)
		defer cancel()
	}

	log := w.Client.log.WithField("execution", executionARN)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]model.StepStatus)
	consecutiveErrs := 0

	for {
		execution, err := w.Client.DescribeExecution(ctx, executionARN)
		switch {
		case err == nil:
			consecutiveErrs = 0

			w.logStepTransitions(ctx, executionARN, seen)

			if execution.Status.Terminal() {
				log.WithField("status", execution.Status).Info("execution finished")

				return execution, nil
			}

			log.WithField("status", execution.Status).Debug("execution in progress")

		case IsRetryable(err):
			consecutiveErrs++
			if consecutiveErrs >= budget {
				return Execution{}, errors.Wrapf(err, "giving up after %d consecutive poll failures", consecutiveErrs)
			}

			log.WithError(err).Warn("poll failed, will retry")

		default:
			return Execution{}, err
		}

		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); errors.Is(cause, ErrWatchTimeout) {
				return Execution{}, errors.Wrap(ErrWatchTimeout, executionARN)
			}

			return Execution{}, errors.Wrap(ctx.Err(), "watch cancelled")
		case <-ticker.C:
		}
	}
}

func (w *Watcher) logStepTransitions(ctx context.Context, executionARN string, seen map[string]model.StepStatus) {
	steps, err := w.Client.ListExecutionSteps(ctx, executionARN)
	if err != nil {
		// Step listing is informational; the status poll decides.
		w.Client.log.WithError(err).Debug("unable to list execution steps")

		return
	}

	for i := range steps {
		step := &steps[i]
		if seen[step.Name] == step.Status {
			continue
		}

		seen[step.Name] = step.Status

		entry := w.Client.log.WithField("step", step.Name).WithField("status", step.Status)
		if step.Outcome != "" {
			entry = entry.WithField("outcome", step.Outcome)
		}

		if step.Status == model.StepStatusFailed {
			entry.WithField("reason", step.FailureReason).Warn("step failed")

			continue
		}

		entry.Info("step status")
	}
}
