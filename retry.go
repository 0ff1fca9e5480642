package orchid

import "time"

// RetryBuilder provides a fluent way to construct RetryOptions values
// for use with OrchestrationContext.CallActivityWithRetry.
type RetryBuilder struct {
	opts RetryOptions
}

// Retry creates a RetryBuilder with the given maxAttempts. The count includes
// the first attempt, so Retry(3) allows up to two retries.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		opts: RetryOptions{
			MaxNumberOfAttempts: maxAttempts,
		},
	}
}

// WithFirstRetryInterval sets the delay before each retry.
//
// Example:
//
//	Retry(3).WithFirstRetryInterval(100 * time.Millisecond)
func (r RetryBuilder) WithFirstRetryInterval(d time.Duration) RetryBuilder {
	o := r.opts
	o.FirstRetryIntervalInMilliseconds = int(d / time.Millisecond)
	return RetryBuilder{opts: o}
}

// Immediate disables any delay between retries.
// Retries still respect MaxNumberOfAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	o := r.opts
	o.FirstRetryIntervalInMilliseconds = 0
	return RetryBuilder{opts: o}
}

// Options returns the underlying RetryOptions to be passed to
// CallActivityWithRetry or CallSubOrchestratorWithRetry.
func (r RetryBuilder) Options() RetryOptions {
	return r.opts
}
