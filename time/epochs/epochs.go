// Package epochs converts between wall clock time and settlement epochs.
// An epoch is a fixed length window counted from the network genesis
// timestamp.
package epochs

import (
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/protocol/primitives"
)

// AtTime returns the epoch containing t. Times before genesis map to
// epoch zero.
func AtTime(genesisMS int64, t time.Time) primitives.Epoch {
	lengthMS := params.KarstConfig().EpochLengthMS
	deltaMS := t.UnixMilli() - genesisMS
	if deltaMS < 0 {
		return 0
	}
	return primitives.Epoch(deltaMS / lengthMS)
}

// CurrentEpoch returns the epoch containing the current wall clock time.
func CurrentEpoch(genesisMS int64) primitives.Epoch {
	return AtTime(genesisMS, time.Now())
}

// StartTime returns the instant an epoch opens.
func StartTime(genesisMS int64, epoch primitives.Epoch) time.Time {
	lengthMS := params.KarstConfig().EpochLengthMS
	return time.UnixMilli(genesisMS + int64(epoch)*lengthMS)
}

// SinceGenesis returns how far the clock has advanced past genesis, or
// zero if genesis is still in the future.
func SinceGenesis(genesisMS int64) time.Duration {
	d := time.Since(time.UnixMilli(genesisMS))
	if d < 0 {
		return 0
	}
	return d
}
