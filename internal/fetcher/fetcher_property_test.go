//go:build property
// +build property

package fetcher

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPropertyBackoffGrowth checks that each retry waits at least as long as
// the previous one and never longer than the cap.
func TestPropertyBackoffGrowth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("delays are monotonic and capped", prop.ForAll(
		func(initialMs, maxMs, attempts int) bool {
			initial := time.Duration(initialMs) * time.Millisecond
			maxDelay := time.Duration(maxMs) * time.Millisecond

			prev := time.Duration(0)
			for attempt := 1; attempt <= attempts; attempt++ {
				d := backoffDelay(attempt, initial, maxDelay)
				if d < prev || d > maxDelay {
					return false
				}
				prev = d
			}
			return true
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1000, 60000),
		gen.IntRange(1, 40),
	))

	properties.Property("delay doubles until capped", prop.ForAll(
		func(initialMs, attempt int) bool {
			initial := time.Duration(initialMs) * time.Millisecond
			maxDelay := time.Hour

			d1 := backoffDelay(attempt, initial, maxDelay)
			d2 := backoffDelay(attempt+1, initial, maxDelay)
			return d2 == maxDelay || d2 == 2*d1
		},
		gen.IntRange(1, 500),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
