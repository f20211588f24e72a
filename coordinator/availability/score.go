package availability

import (
	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/protocol/primitives"
)

// WindowScore computes the recency weighted pass rate of a host over the
// spot check window ending at the current epoch. A result from age epochs
// ago carries weight window − age, so the current epoch counts six times
// as much as the oldest one in a six epoch window. The second return is
// false when no result falls inside the window, in which case the score
// is meaningless and callers leave the stored value untouched.
func WindowScore(results []*types.SpotCheckResult, current primitives.Epoch) (float64, bool) {
	window := params.KarstConfig().SpotCheckWindowEpochs
	var passed, total float64
	for _, r := range results {
		if r.Epoch > current {
			continue
		}
		age := uint64(current - r.Epoch)
		if age >= window {
			continue
		}
		w := float64(window - age)
		total += w
		if r.Passed {
			passed += w
		}
	}
	if total == 0 {
		return 0, false
	}
	return passed / total, true
}

// NextStatus applies the availability lifecycle to a freshly computed
// score. UNBONDING and SLASHED never move from here, those transitions
// belong to the staking flow.
func NextStatus(cur types.HostStatus, score float64) types.HostStatus {
	if cur == types.HostUnbonding || cur == types.HostSlashed {
		return cur
	}
	switch {
	case score >= params.KarstConfig().TrustedScoreThreshold:
		return types.HostTrusted
	case score == 0:
		return types.HostInactive
	case cur == types.HostTrusted:
		return types.HostDegraded
	default:
		return cur
	}
}
