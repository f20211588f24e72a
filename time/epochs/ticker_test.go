package epochs

import (
	"testing"
	"time"

	"github.com/karstnet/karst/protocol/primitives"
	"github.com/stretchr/testify/require"
)

var _ Ticker = (*EpochTicker)(nil)

func TestEpochTicker(t *testing.T) {
	ticker := &EpochTicker{
		c:    make(chan primitives.Epoch),
		done: make(chan struct{}),
	}
	defer ticker.Done()

	var sinceDuration time.Duration
	since := func(time.Time) time.Duration {
		return sinceDuration
	}

	var untilDuration time.Duration
	until := func(time.Time) time.Duration {
		return untilDuration
	}

	var tick chan time.Time
	after := func(time.Duration) <-chan time.Time {
		return tick
	}

	genesis := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	period := 4 * time.Hour

	// The clock sits in the middle of epoch 2, so the first delivery is
	// the opening of epoch 3.
	sinceDuration = 10 * time.Hour
	untilDuration = 2 * time.Hour
	// Buffered to prevent a deadlock since the ticker goroutine calls a
	// function in this goroutine.
	tick = make(chan time.Time, 2)
	ticker.start(genesis, period, since, until, after)

	tick <- time.Now()
	require.Equal(t, primitives.Epoch(3), <-ticker.C())

	tick <- time.Now()
	require.Equal(t, primitives.Epoch(4), <-ticker.C())

	tick <- time.Now()
	require.Equal(t, primitives.Epoch(5), <-ticker.C())
}

func TestEpochTicker_BeforeGenesis(t *testing.T) {
	ticker := &EpochTicker{
		c:    make(chan primitives.Epoch),
		done: make(chan struct{}),
	}
	defer ticker.Done()

	since := func(time.Time) time.Duration {
		return -2 * time.Hour
	}
	until := func(time.Time) time.Duration {
		return 2 * time.Hour
	}
	tick := make(chan time.Time, 2)
	after := func(time.Duration) <-chan time.Time {
		return tick
	}

	genesis := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticker.start(genesis, 4*time.Hour, since, until, after)

	// The first delivery at genesis is epoch zero.
	tick <- time.Now()
	require.Equal(t, primitives.Epoch(0), <-ticker.C())
	tick <- time.Now()
	require.Equal(t, primitives.Epoch(1), <-ticker.C())
}
