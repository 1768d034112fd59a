package util

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackoff returns an exponential backoff that doubles from initial up to max and never gives up.
// jitter is the randomization factor applied to every interval; zero makes the sequence exact.
func NewBackoff(initial, max time.Duration, jitter float64) *backoff.ExponentialBackOff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
