package epochs

import (
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/protocol/primitives"
)

// Ticker is a convenience interface for the epoch ticker.
type Ticker interface {
	// C returns a channel of epoch boundaries.
	C() <-chan primitives.Epoch
	// Done should be called to clean up the ticker.
	Done()
}

// EpochTicker delivers the epoch number on its channel at the instant
// each epoch opens.
type EpochTicker struct {
	c    chan primitives.Epoch
	done chan struct{}
}

// C returns the ticker channel.
func (t *EpochTicker) C() <-chan primitives.Epoch {
	return t.c
}

// Done stops the ticker goroutine.
func (t *EpochTicker) Done() {
	go func() {
		t.done <- struct{}{}
	}()
}

// NewTicker starts a ticker aligned to epoch boundaries of the given
// genesis.
func NewTicker(genesisMS int64) *EpochTicker {
	t := &EpochTicker{
		c:    make(chan primitives.Epoch),
		done: make(chan struct{}),
	}
	t.start(time.UnixMilli(genesisMS), params.KarstConfig().EpochLength(), time.Since, time.Until, time.After)
	return t
}

func (t *EpochTicker) start(
	genesis time.Time,
	period time.Duration,
	since, until func(time.Time) time.Duration,
	after func(time.Duration) <-chan time.Time,
) {
	go func() {
		sinceGenesis := since(genesis)
		var nextTickTime time.Time
		var epoch primitives.Epoch
		if sinceGenesis < period {
			// Handle the case when the current time is before genesis.
			nextTickTime = genesis
			epoch = 0
		} else {
			nextTick := sinceGenesis.Truncate(period) + period
			nextTickTime = genesis.Add(nextTick)
			epoch = primitives.Epoch(nextTick / period)
		}

		for {
			waitTime := until(nextTickTime)
			select {
			case <-after(waitTime):
				t.c <- epoch
				epoch++
				nextTickTime = nextTickTime.Add(period)
			case <-t.done:
				return
			}
		}
	}()
}
