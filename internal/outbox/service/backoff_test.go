package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base, ceiling := 30*time.Second, time.Hour

	assert.Equal(t, 30*time.Second, Backoff(1, base, ceiling, 0))
	assert.Equal(t, 60*time.Second, Backoff(2, base, ceiling, 0))
	assert.Equal(t, 16*time.Minute, Backoff(6, base, ceiling, 0))
	assert.Equal(t, time.Hour, Backoff(8, base, ceiling, 0))
	assert.Equal(t, time.Hour, Backoff(80, base, ceiling, 0))
	assert.Equal(t, 30*time.Second, Backoff(0, base, ceiling, 0))
}

func TestBackoff_RandomizationStaysInBounds(t *testing.T) {
	base, ceiling := 30*time.Second, time.Hour

	for i := 0; i < 50; i++ {
		first := Backoff(1, base, ceiling, retryRandomization)
		assert.GreaterOrEqual(t, first, 24*time.Second)
		assert.LessOrEqual(t, first, 36*time.Second)

		fifth := Backoff(5, base, ceiling, retryRandomization)
		assert.GreaterOrEqual(t, fifth, 384*time.Second)
		assert.LessOrEqual(t, fifth, 576*time.Second)

		assert.LessOrEqual(t, Backoff(12, base, ceiling, retryRandomization), ceiling)
	}
}
