package auth_test

import (
	"testing"
	"time"

	"github.com/remix/authcore/pkg/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitOnFailure(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   50,
		RandomDelayMs: 25,
	})

	start := time.Now()
	timing.Wait(false)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestTimingDelay_NoDelayOnSuccess(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs: 100,
	})

	start := time.Now()
	timing.Wait(true)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestTimingDelay_WaitFromCountsElapsedWork(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs: 60,
	})

	start := time.Now().Add(-40 * time.Millisecond) // 40ms already "spent"
	timing.WaitFrom(start, false)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 120*time.Millisecond, "only tops up to the target")
}

func TestTimingDelay_ZeroConfigIsInert(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	start := time.Now()
	timing.Wait(false)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
