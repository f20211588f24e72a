// Package royalty implements the declining founder royalty taken off
// every pool credit. The rate decays with cumulative protocol volume so
// early flow pays more than mature flow.
package royalty

import (
	"math"

	"github.com/karstnet/karst/config/params"
)

// Rate returns the founder royalty rate at the given cumulative protocol
// volume: r(v) = r0 * (1 + v/v*)^(-alpha). With the mainnet constants the
// rate starts at 0.15 and halves every time 1 + v/v* grows ninefold.
func Rate(volume int64) float64 {
	cfg := params.KarstConfig()
	if volume < 0 {
		volume = 0
	}
	return cfg.FounderRoyaltyR0 * math.Pow(1+float64(volume)/cfg.RoyaltyVolumeStar, -cfg.RoyaltyAlpha)
}

// ProtocolFee returns the founder cut of a gross credit, floored to whole
// sats. The volume is the cumulative protocol volume before this credit.
func ProtocolFee(gross, volume int64) int64 {
	if gross <= 0 {
		return 0
	}
	return int64(math.Floor(float64(gross) * Rate(volume)))
}

// Split divides a gross credit into the founder fee and the pool share.
// fee + pool == gross always holds.
func Split(gross, volume int64) (fee, pool int64) {
	fee = ProtocolFee(gross, volume)
	return fee, gross - fee
}
