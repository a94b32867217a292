package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int     // retry attempts, not counting the initial call
	BaseDelay         float64 // initial delay in seconds
	MaxDelay          float64 // maximum delay between retries
	BackoffMultiplier float64 // exponential backoff factor
	Jitter            bool    // randomize delays to avoid thundering herd
}

// DefaultRetryPolicy returns the default transport retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// CompleteWithRetry calls the client with the configured retry policy.
// Only retryable transport errors are retried; context cancellation stops
// the loop immediately.
func CompleteWithRetry(ctx context.Context, client Client, policy RetryPolicy, req Request) (*Response, error) {
	resp, err := client.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, &TransportError{Message: "request cancelled during retry", Cause: ctx.Err()}
		case <-time.After(policy.Delay(attempt)):
		}

		resp, err = client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
	}

	return nil, err
}
