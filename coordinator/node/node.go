// Package node is the main service which launches a coordinator and manages
// the lifecycle of all its associated services at runtime, such as ingest,
// settlement, and the HTTP API, gracefully closing them if the process ends.
package node

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/karstnet/karst/cmd"
	"github.com/karstnet/karst/cmd/coordinator/flags"
	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/availability"
	"github.com/karstnet/karst/coordinator/cache"
	coreepoch "github.com/karstnet/karst/coordinator/core/epoch"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/karstnet/karst/coordinator/db/kv"
	"github.com/karstnet/karst/coordinator/ingest"
	"github.com/karstnet/karst/coordinator/materializer"
	"github.com/karstnet/karst/coordinator/rpc"
	"github.com/karstnet/karst/coordinator/scheduler"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/io/logs"
	"github.com/karstnet/karst/lightning"
	"github.com/karstnet/karst/monitoring/backup"
	"github.com/karstnet/karst/monitoring/prometheus"
	"github.com/karstnet/karst/monitoring/tracing"
	"github.com/karstnet/karst/runtime"
	"github.com/karstnet/karst/runtime/prereqs"
	"github.com/karstnet/karst/runtime/version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

// CoordinatorNode defines a struct that handles the services running a karst
// coordinator. It handles the lifecycle of the entire system and registers
// services to a service registry.
type CoordinatorNode struct {
	cliCtx       *cli.Context
	ctx          context.Context
	cancel       context.CancelFunc
	services     *runtime.ServiceRegistry
	lock         sync.RWMutex
	stop         chan struct{} // Channel to wait for termination notifications.
	db           db.Database
	genesisMS    int64
	bindings     *cache.PaymentBindings
	backend      lightning.Backend
	ingest       *ingest.Service
	materializer *materializer.Service
	settler      *coreepoch.Settler
}

// New creates a new node instance, sets up configuration options, and
// registers every required service to the node.
func New(cliCtx *cli.Context) (*CoordinatorNode, error) {
	serviceName := cliCtx.String(cmd.TracingProcessNameFlag.Name)
	if serviceName == "" {
		serviceName = "coordinator"
	}
	if err := tracing.Setup(
		serviceName,
		cliCtx.String(cmd.TracingEndpointFlag.Name),
		cliCtx.Float64(cmd.TraceSampleFractionFlag.Name),
		cliCtx.Bool(cmd.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	// Warn if user's platform is not supported
	prereqs.WarnIfPlatformNotSupported(cliCtx.Context)

	if cliCtx.IsSet(cmd.ChainConfigFileFlag.Name) {
		if err := params.LoadConfigFile(cliCtx.String(cmd.ChainConfigFileFlag.Name)); err != nil {
			return nil, err
		}
	}

	registry := runtime.NewServiceRegistry()

	ctx, cancel := context.WithCancel(cliCtx.Context)
	coordinator := &CoordinatorNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: registry,
		stop:     make(chan struct{}),
	}

	if err := coordinator.startDB(cliCtx); err != nil {
		return nil, err
	}

	if err := coordinator.startPayments(cliCtx); err != nil {
		return nil, err
	}

	if err := coordinator.startIngest(cliCtx); err != nil {
		return nil, err
	}

	if err := coordinator.registerAvailabilityService(cliCtx); err != nil {
		return nil, err
	}

	if err := coordinator.registerSchedulerService(cliCtx); err != nil {
		return nil, err
	}

	if err := coordinator.registerRPCService(cliCtx); err != nil {
		return nil, err
	}

	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := coordinator.registerPrometheusService(cliCtx); err != nil {
			return nil, err
		}
	}

	return coordinator, nil
}

// Start the CoordinatorNode and kicks off every registered service.
func (c *CoordinatorNode) Start() {
	c.lock.Lock()

	log.WithFields(logrus.Fields{
		"version": version.GetVersion(),
	}).Info("Starting coordinator node")

	c.services.StartAll()

	stop := c.stop
	c.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go c.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the coordinator node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (c *CoordinatorNode) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()

	log.Info("Stopping coordinator node")
	c.services.StopAll()
	if err := c.db.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
	c.cancel()
	close(c.stop)
}

func (c *CoordinatorNode) startDB(cliCtx *cli.Context) error {
	baseDir := cliCtx.String(cmd.DataDirFlag.Name)
	dbPath := filepath.Join(baseDir, kv.CoordinatorDbDirName)
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	log.WithField("database-path", dbPath).Info("Checking DB")

	d, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	clearDBConfirmed := false
	if clearDB && !forceClearDB {
		actionText := "This will delete your coordinator database stored in your data directory. " +
			"Your database backups will not be removed - do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed || forceClearDB {
		log.Warning("Removing database")
		if err := d.Close(); err != nil {
			return errors.Wrap(err, "could not close db prior to clearing")
		}
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(dbPath)
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}
	genesisMS, err := c.resolveGenesis(cliCtx, d)
	if err != nil {
		if closeErr := d.Close(); closeErr != nil {
			log.Errorf("Failed to close database: %v", closeErr)
		}
		return err
	}

	c.db = d
	c.genesisMS = genesisMS
	log.WithField("genesis", genesisMS).Info("Epoch clock initialized")
	return nil
}

func (c *CoordinatorNode) resolveGenesis(cliCtx *cli.Context, d db.Database) (int64, error) {
	genesisMS := int64(cliCtx.Uint64(flags.GenesisTimestampFlag.Name))
	if genesisMS == 0 {
		stored, err := d.GenesisTimestamp(c.ctx)
		if err != nil {
			return 0, err
		}
		genesisMS = stored
	}
	if genesisMS == 0 {
		genesisMS = params.KarstConfig().GenesisTimestampMS
	}
	// Write once: an initialized datadir refuses a conflicting value.
	if err := d.SaveGenesisTimestamp(c.ctx, genesisMS); err != nil {
		return 0, err
	}
	return genesisMS, nil
}

func (c *CoordinatorNode) startPayments(cliCtx *cli.Context) error {
	c.bindings = cache.NewPaymentBindings()

	lndHost := cliCtx.String(flags.LNDHostFlag.Name)
	if lndHost == "" {
		log.Warn("No lnd endpoint configured, payments run in dev mode and invoices settle instantly")
		return nil
	}
	client, err := lightning.NewLNDClient(
		lndHost,
		cliCtx.String(flags.LNDMacaroonPathFlag.Name),
		cliCtx.String(flags.LNDTLSCertPathFlag.Name),
	)
	if err != nil {
		return errors.Wrap(err, "could not create lnd client")
	}
	log.WithField("endpoint", logs.MaskCredentialsLogging(lndHost)).Info("Using lnd payment backend")
	c.backend = client
	return nil
}

func (c *CoordinatorNode) startIngest(cliCtx *cli.Context) error {
	mintPubkeys, err := parseMintPubkeys(cliCtx.String(flags.MintPubkeysFlag.Name))
	if err != nil {
		return err
	}
	if len(mintPubkeys) == 0 {
		log.Warn("No trusted mint pubkeys configured, egress receipts will be rejected")
	}

	ing, err := ingest.NewService(c.ctx, &ingest.Config{
		DB:                  c.db,
		Lightning:           c.backend,
		Bindings:            c.bindings,
		MintPubkeys:         mintPubkeys,
		GenesisMS:           c.genesisMS,
		RequirePow:          cliCtx.Bool(flags.RequirePowFlag.Name),
		FreeWritesPerSecond: cliCtx.Float64(flags.FreeWritesPerMinFlag.Name) / 60,
	})
	if err != nil {
		return err
	}
	c.ingest = ing

	mat, err := materializer.NewService(&materializer.Config{DB: c.db})
	if err != nil {
		return err
	}
	c.materializer = mat

	operatorKey, err := c.db.OperatorKey(c.ctx)
	if err != nil {
		return err
	}
	c.settler = coreepoch.NewSettler(c.db, operatorKey)
	return nil
}

func (c *CoordinatorNode) registerAvailabilityService(cliCtx *cli.Context) error {
	svc := availability.NewService(c.ctx, &availability.Config{
		DB:        c.db,
		GenesisMS: c.genesisMS,
		Interval:  cliCtx.Duration(flags.SpotCheckIntervalFlag.Name),
	})
	return c.services.RegisterService(svc)
}

func (c *CoordinatorNode) registerSchedulerService(cliCtx *cli.Context) error {
	interval := time.Duration(cliCtx.Int(flags.SchedulerIntervalFlag.Name)) * time.Millisecond
	svc, err := scheduler.NewService(c.ctx, &scheduler.Config{
		DB:        c.db,
		Settler:   c.settler,
		GenesisMS: c.genesisMS,
		Interval:  interval,
	})
	if err != nil {
		return err
	}
	return c.services.RegisterService(svc)
}

func (c *CoordinatorNode) registerRPCService(cliCtx *cli.Context) error {
	var checker *availability.Service
	if err := c.services.FetchService(&checker); err != nil {
		return err
	}

	svc := rpc.NewService(c.ctx, &rpc.Config{
		Host:           cliCtx.String(flags.HTTPHost.Name),
		Port:           cliCtx.String(flags.HTTPPort.Name),
		AllowedOrigins: strings.Split(cliCtx.String(flags.AllowedOriginsFlag.Name), ","),
		DB:             c.db,
		Ingest:         c.ingest,
		Materializer:   c.materializer,
		Settler:        c.settler,
		Checker:        checker,
		GenesisMS:      c.genesisMS,
	})
	return c.services.RegisterService(svc)
}

func (c *CoordinatorNode) registerPrometheusService(cliCtx *cli.Context) error {
	var additionalHandlers []prometheus.Handler
	if cliCtx.IsSet(cmd.EnableBackupWebhookFlag.Name) {
		additionalHandlers = append(
			additionalHandlers,
			prometheus.Handler{
				Path:    "/db/backup",
				Handler: backup.Handler(c.db, cliCtx.String(cmd.BackupWebhookOutputDir.Name)),
			},
		)
	}

	service := prometheus.NewService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(flags.MonitoringPortFlag.Name)),
		c.services,
		additionalHandlers...,
	)
	hook := prometheus.NewLogrusCollector()
	logrus.AddHook(hook)
	return c.services.RegisterService(service)
}

func parseMintPubkeys(raw string) ([]ed25519.PublicKey, error) {
	var keys []ed25519.PublicKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(part, "0x"))
		if part == "" {
			continue
		}
		b, err := bytesutil.DecodeHex32(part)
		if err != nil {
			return nil, errors.Wrapf(err, "bad mint pubkey %q", part)
		}
		keys = append(keys, ed25519.PublicKey(b[:]))
	}
	return keys, nil
}
