package testtransport

import (
	"errors"
	"math"
	"time"
)

// RetryStrategy decides whether a failed envelope is sent again and how long
// it waits before being available. attempt starts at 0 for the first
// failure.
type RetryStrategy interface {
	ShouldRetry(attempt int, err error) (bool, time.Duration)
}

// ExponentialBackoff retries up to MaxRetries times, multiplying the delay
// after each attempt. There is no jitter so tests stay deterministic.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxRetries   int
}

// DefaultRetryStrategy mirrors the usual broker defaults: 3 retries starting
// at 1s and doubling.
func DefaultRetryStrategy() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxRetries:   3,
	}
}

func (b *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	var unrecoverable *UnrecoverableError
	if errors.As(err, &unrecoverable) {
		return false, 0
	}

	if attempt >= b.MaxRetries {
		return false, 0
	}

	delay := time.Duration(float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt)))
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	return true, delay
}
