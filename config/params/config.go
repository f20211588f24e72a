// Package params defines the canonical protocol constants for the karst
// network and the accessors used to read and override them.
package params

import (
	"time"
)

// CoordinatorConfig contains the protocol constants every coordinator on a
// network must agree on, plus local tuning knobs with safe defaults.
type CoordinatorConfig struct {
	// Network identity.
	ConfigName         string `yaml:"CONFIG_NAME"`
	GenesisTimestampMS int64  `yaml:"GENESIS_TIMESTAMP_MS"` // Unix ms of epoch zero.

	// Epoch clock.
	EpochLengthMS int64 `yaml:"EPOCH_LENGTH_MS"` // Settlement period duration.

	// Event envelope limits.
	EventMaxBodyBytes int  `yaml:"EVENT_MAX_BODY"`     // Decoded body byte limit.
	PowDifficultyBits uint `yaml:"POW_DIFFICULTY_BITS"` // Leading zero bits for free writes.

	// Economics. Percentages are fractions in [0,1].
	FounderRoyaltyR0  float64 `yaml:"FOUNDER_ROYALTY_R0"`  // Royalty rate at zero volume.
	RoyaltyVolumeStar float64 `yaml:"ROYALTY_VOLUME_STAR"` // Volume scale of the royalty taper.
	RoyaltyAlpha      float64 `yaml:"ROYALTY_ALPHA"`       // Taper exponent, ln2/ln9.
	AggregatorFeePct  float64 `yaml:"AGGREGATOR_FEE_PCT"`
	AutoBidPct        float64 `yaml:"AUTO_BID_PCT"`
	EgressRoyaltyPct  float64 `yaml:"EGRESS_ROYALTY_PCT"`
	CIDEpochCapPct    float64 `yaml:"CID_EPOCH_CAP_PCT"` // Fraction of a pool payable per epoch.

	// Pin contracts.
	PinMinBudgetSats int64   `yaml:"PIN_MIN_BUDGET_SATS"`
	PinMaxCopies     uint64  `yaml:"PIN_MAX_COPIES"`
	PinCancelFeePct  float64 `yaml:"PIN_CANCEL_FEE_PCT"`

	// Receipts.
	ReceiptEpochWindow uint64 `yaml:"RECEIPT_EPOCH_WINDOW"` // Accepted lag behind the current epoch.

	// Availability monitoring.
	SpotCheckTimeout         time.Duration `yaml:"SPOT_CHECK_TIMEOUT"`
	SpotCheckWindowEpochs    uint64        `yaml:"SPOT_CHECK_WINDOW_EPOCHS"`
	SpotCheckConcurrency     int64         `yaml:"SPOT_CHECK_CONCURRENCY"`
	TrustedScoreThreshold    float64       `yaml:"TRUSTED_SCORE_THRESHOLD"`
	DefaultAvailabilityScore float64       `yaml:"DEFAULT_AVAILABILITY_SCORE"`

	// Payments.
	PaymentBindingTTL   time.Duration `yaml:"PAYMENT_BINDING_TTL"`
	PaymentSweepPeriod  time.Duration `yaml:"PAYMENT_SWEEP_PERIOD"`
	InvoiceExpirySecs   int64         `yaml:"INVOICE_EXPIRY_SECS"`

	// Query surface.
	DefaultPageSize  int `yaml:"DEFAULT_PAGE_SIZE"`
	MaxPageSize      int `yaml:"MAX_PAGE_SIZE"`
	ThreadMaxDepth   int `yaml:"THREAD_MAX_DEPTH"`
	ThreadMaxReplies int `yaml:"THREAD_MAX_REPLIES"`
	FeedCacheSize    int `yaml:"FEED_CACHE_SIZE"`

	// Citation graph.
	PageRankDamping    float64 `yaml:"PAGERANK_DAMPING"`
	PageRankIterations int     `yaml:"PAGERANK_ITERATIONS"`
}

var karstConfig = MainnetConfig()

// KarstConfig retrieves the coordinator config.
func KarstConfig() *CoordinatorConfig {
	return karstConfig
}

// OverrideKarstConfig by replacing the config. The preferred pattern is to
// call this once at the start of a program, or in tests together with
// SetupTestConfigCleanup.
func OverrideKarstConfig(c *CoordinatorConfig) {
	karstConfig = c
}

// Copy returns a copy of the config object.
func (c *CoordinatorConfig) Copy() *CoordinatorConfig {
	config := *c
	return &config
}

// EpochLength returns the settlement period as a duration.
func (c *CoordinatorConfig) EpochLength() time.Duration {
	return time.Duration(c.EpochLengthMS) * time.Millisecond
}
