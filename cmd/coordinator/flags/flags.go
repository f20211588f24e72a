// Package flags defines the command line flags specific to the coordinator
// binary. Flags shared with other karst binaries live in the cmd package.
package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// HTTPHost specifies the interface the coordinator API listens on.
	HTTPHost = &cli.StringFlag{
		Name:    "http-host",
		Usage:   "Host on which the coordinator HTTP API is served",
		Value:   "127.0.0.1",
		EnvVars: []string{"COORDINATOR_HOST"},
	}
	// HTTPPort specifies the port the coordinator API listens on.
	HTTPPort = &cli.StringFlag{
		Name:    "http-port",
		Usage:   "Port on which the coordinator HTTP API is served",
		Value:   "2500",
		EnvVars: []string{"COORDINATOR_PORT"},
	}
	// AllowedOriginsFlag defines the origins the API accepts cross origin
	// requests from.
	AllowedOriginsFlag = &cli.StringFlag{
		Name:  "allowed-origins",
		Usage: "Comma separated list of origins allowed to make cross origin requests against the HTTP API",
		Value: "*",
	}
	// MonitoringPortFlag defines the port used by the prometheus service.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus",
		Value: 8080,
	}
	// MintPubkeysFlag lists the mints whose countersignatures the
	// coordinator accepts on egress receipts.
	MintPubkeysFlag = &cli.StringFlag{
		Name:    "mint-pubkeys",
		Usage:   "Comma separated list of hex encoded ed25519 public keys of trusted receipt mints. Receipt ingestion is rejected when empty",
		EnvVars: []string{"MINT_PUBKEYS"},
	}
	// LNDHostFlag is the base URL of the lnd REST endpoint used to issue
	// and watch invoices. Payments run in dev mode when unset.
	LNDHostFlag = &cli.StringFlag{
		Name:    "lnd-host",
		Usage:   "Base URL of the lnd REST API such as https://localhost:8080. Invoices are simulated in dev mode when unset",
		EnvVars: []string{"LND_HOST"},
	}
	// LNDMacaroonPathFlag points at the macaroon presented to lnd.
	LNDMacaroonPathFlag = &cli.StringFlag{
		Name:    "lnd-macaroon",
		Usage:   "Path to the macaroon authorizing invoice operations against lnd",
		EnvVars: []string{"LND_MACAROON_PATH"},
	}
	// LNDTLSCertPathFlag points at the TLS certificate presented by lnd.
	LNDTLSCertPathFlag = &cli.StringFlag{
		Name:    "lnd-tlscert",
		Usage:   "Path to the TLS certificate of the lnd REST endpoint",
		EnvVars: []string{"LND_TLS_CERT_PATH"},
	}
	// SchedulerIntervalFlag controls how often the settlement scheduler
	// wakes up to look for unsettled epochs.
	SchedulerIntervalFlag = &cli.IntFlag{
		Name:    "scheduler-interval",
		Usage:   "Milliseconds between settlement scheduler ticks. Zero disables automatic settlement",
		Value:   60000,
		EnvVars: []string{"EPOCH_SCHEDULER_INTERVAL_MS"},
	}
	// GenesisTimestampFlag pins the unix millisecond timestamp of epoch
	// zero for a fresh datadir.
	GenesisTimestampFlag = &cli.Uint64Flag{
		Name:    "genesis-ts-ms",
		Usage:   "Unix milliseconds of epoch zero. Zero keeps the timestamp already stored in the datadir, or the protocol default on first start",
		EnvVars: []string{"GENESIS_TIMESTAMP_MS"},
	}
	// RequirePowFlag demands a hashcash proof of work on zero sat events.
	RequirePowFlag = &cli.BoolFlag{
		Name:    "require-pow",
		Usage:   "Require a hashcash proof of work stamp on events that carry no payment",
		EnvVars: []string{"REQUIRE_POW"},
	}
	// SpotCheckIntervalFlag controls how often hosts are probed for the
	// content they advertise.
	SpotCheckIntervalFlag = &cli.DurationFlag{
		Name:  "spot-check-interval",
		Usage: "Interval between host availability probe rounds. Zero disables probing",
		Value: 30 * time.Minute,
	}
	// FreeWritesPerMinFlag rate limits unpaid events per author.
	FreeWritesPerMinFlag = &cli.Float64Flag{
		Name:  "free-writes-per-min",
		Usage: "Per author rate limit for events that carry no payment. Zero disables the limiter",
	}
)
