package params

import (
	"math"
	"time"
)

// mainnetCoordinatorConfig holds the constants of the public karst network.
// Epoch zero opened at 2025-01-01T00:00:00Z.
var mainnetCoordinatorConfig = &CoordinatorConfig{
	ConfigName:         "mainnet",
	GenesisTimestampMS: 1735689600000,

	EpochLengthMS: 4 * 60 * 60 * 1000,

	EventMaxBodyBytes: 16384,
	PowDifficultyBits: 16,

	FounderRoyaltyR0:  0.15,
	RoyaltyVolumeStar: 125_000_000,
	RoyaltyAlpha:      math.Log(2) / math.Log(9),
	AggregatorFeePct:  0.05,
	AutoBidPct:        0.02,
	EgressRoyaltyPct:  0.01,
	CIDEpochCapPct:    0.20,

	PinMinBudgetSats: 1000,
	PinMaxCopies:     20,
	PinCancelFeePct:  0.05,

	ReceiptEpochWindow: 2,

	SpotCheckTimeout:         30 * time.Second,
	SpotCheckWindowEpochs:    6,
	SpotCheckConcurrency:     8,
	TrustedScoreThreshold:    0.6,
	DefaultAvailabilityScore: 0.5,

	PaymentBindingTTL:  10 * time.Minute,
	PaymentSweepPeriod: 2 * time.Minute,
	InvoiceExpirySecs:  600,

	DefaultPageSize:  50,
	MaxPageSize:      200,
	ThreadMaxDepth:   10,
	ThreadMaxReplies: 500,
	FeedCacheSize:    512,

	PageRankDamping:    0.85,
	PageRankIterations: 20,
}

// MainnetConfig returns the configuration to be used in the main network.
func MainnetConfig() *CoordinatorConfig {
	return mainnetCoordinatorConfig
}
