package service

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const retryRandomization = 0.2

// Backoff returns the delay before retry number attempt (1-based): base doubled
// per attempt, spread by randomization, capped at ceiling.
func Backoff(attempt int, base, ceiling time.Duration, randomization float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: randomization,
		Multiplier:          2,
		MaxInterval:         ceiling,
	}
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt && delay < ceiling; i++ {
		delay = b.NextBackOff()
	}
	return min(delay, ceiling)
}
