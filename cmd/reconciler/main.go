package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/omni/rollup-bridge-reconciler/bridge"
	"github.com/omni/rollup-bridge-reconciler/config"
	"github.com/omni/rollup-bridge-reconciler/contract"
	"github.com/omni/rollup-bridge-reconciler/db"
	"github.com/omni/rollup-bridge-reconciler/ethclient"
	"github.com/omni/rollup-bridge-reconciler/logging"
	"github.com/omni/rollup-bridge-reconciler/orchestrator"
	"github.com/omni/rollup-bridge-reconciler/presenter"
	"github.com/omni/rollup-bridge-reconciler/reconciler"
	"github.com/omni/rollup-bridge-reconciler/repository"
	"github.com/omni/rollup-bridge-reconciler/store"
)

const appName = "rollup-bridge-reconciler"

var (
	configFileFlag = cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration file",
		Value:   "config.yml",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Listen address of the prometheus metrics endpoint",
		Value: ":2112",
	}
	migrationsFlag = cli.StringFlag{
		Name:  "migrations",
		Usage: "Directory with database migrations",
		Value: db.DefaultMigrationsPath,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "Reconciles L1 and L2 legs of rollup bridge transactions"
	flags := []cli.Flag{&configFileFlag, &migrationsFlag}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run pollers, persistence and the http api",
			Action: run,
			Flags:  append(flags, &metricsAddrFlag),
		},
		{
			Name:   "reset",
			Usage:  "Delete every stored bridge transaction of the configured chains",
			Action: reset,
			Flags:  flags,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.New().WithError(err).Fatal("reconciler failed")
	}
}

var errNoDatabase = errors.New("postgres config is missing")

func setup(cliCtx *cli.Context) (logging.Logger, *config.Config, error) {
	logger := logging.New()
	cfg, err := config.ReadConfigFromFile(cliCtx.String(configFileFlag.Name))
	if err != nil {
		return nil, nil, fmt.Errorf("can't read config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	return logger, cfg, nil
}

func connectDB(cliCtx *cli.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.DBConfig == nil {
		return nil, errNoDatabase
	}
	dbConn, err := db.OpenAndMigrate(cliCtx.Context, cfg.DBConfig, cliCtx.String(migrationsFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("can't connect to database and apply migrations: %w", err)
	}
	return dbConn, nil
}

func reset(cliCtx *cli.Context) error {
	logger, cfg, err := setup(cliCtx)
	if err != nil {
		return err
	}
	dbConn, err := connectDB(cliCtx, cfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	repo := repository.NewRepo(dbConn)
	p := reconciler.NewPersister(logger, repo.BridgeTxns, store.New(), cfg.Persistence.FlushInterval, cfg.ChainIDs()...)
	if err = p.Reset(cliCtx.Context); err != nil {
		return err
	}
	logger.WithField("chain_ids", cfg.ChainIDs()).Warn("deleted stored bridge transactions")
	return nil
}

func signer(key *ecdsa.PrivateKey, chainID uint64) (*bind.TransactOpts, error) {
	if key == nil {
		return nil, nil
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("can't create transactor for chain %d: %w", chainID, err)
	}
	return opts, nil
}

// account resolves the operating account. A configured private key must match a configured account.
func account(cfg *config.BridgeConfig) (common.Address, *ecdsa.PrivateKey, error) {
	if cfg.PrivateKey == "" {
		return cfg.Account, nil, nil
	}
	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("can't parse private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if cfg.Account != (common.Address{}) && cfg.Account != addr {
		return common.Address{}, nil, fmt.Errorf("private key belongs to %s, not to the configured account %s", addr, cfg.Account)
	}
	return addr, key, nil
}

//nolint:funlen
func run(cliCtx *cli.Context) error {
	logger, cfg, err := setup(cliCtx)
	if err != nil {
		return err
	}

	l1Cfg, l2Cfg := cfg.Chains.L1, cfg.Chains.L2
	l1Client, err := ethclient.NewClient(l1Cfg.RPC.Host, l1Cfg.RPC.Timeout, l1Cfg.ChainID)
	if err != nil {
		return fmt.Errorf("can't dial l1 rpc client: %w", err)
	}
	l2Client, err := ethclient.NewClient(l2Cfg.RPC.Host, l2Cfg.RPC.Timeout, l2Cfg.ChainID)
	if err != nil {
		return fmt.Errorf("can't dial l2 rpc client: %w", err)
	}

	addr, key, err := account(cfg.Bridge)
	if err != nil {
		return err
	}
	l1Signer, err := signer(key, l1Cfg.ChainID)
	if err != nil {
		return err
	}
	l2Signer, err := signer(key, l2Cfg.ChainID)
	if err != nil {
		return err
	}
	if key == nil {
		logger.Warn("no private key configured, bridge operations are disabled")
	}

	rollupBridge := contract.NewRollupBridge(&contract.RollupBridgeConfig{
		L1Client:             l1Client,
		L2Client:             l2Client,
		L1Signer:             l1Signer,
		L2Signer:             l2Signer,
		InboxAddress:         cfg.Bridge.InboxAddress,
		OutboxAddress:        cfg.Bridge.OutboxAddress,
		GatewayRouterAddress: cfg.Bridge.GatewayRouterAddress,
		ArbSysAddress:        cfg.Bridge.ArbSysAddress,
		NodeInterfaceAddress: cfg.Bridge.NodeInterfaceAddress,
	})

	s := store.New()
	var persister *reconciler.Persister
	dbConn, err := connectDB(cliCtx, cfg)
	switch {
	case errors.Is(err, errNoDatabase):
		logger.Warn("no postgres config, bridge transactions are kept in memory only")
	case err != nil:
		return err
	default:
		defer dbConn.Close()
		repo := repository.NewRepo(dbConn)
		persister = reconciler.NewPersister(logger, repo.BridgeTxns, s, cfg.Persistence.FlushInterval, cfg.ChainIDs()...)
		if err = persister.Restore(cliCtx.Context); err != nil {
			return err
		}
	}

	rec := reconciler.New(logger, rollupBridge, bridge.NewProviders(l1Client, l2Client), s, reconciler.Config{
		L1ChainID:           l1Cfg.ChainID,
		L2ChainID:           l2Cfg.ChainID,
		ReceiptsInterval:    cfg.Pollers.ReceiptsInterval,
		DepositsInterval:    cfg.Pollers.DepositsInterval,
		WithdrawalsInterval: cfg.Pollers.WithdrawalsInterval,
		MaxConcurrency:      cfg.Pollers.MaxConcurrency,
		MaxBackoff:          cfg.Pollers.MaxBackoff,
	})
	var operator presenter.Operator = orchestrator.New(logger, rollupBridge, s, orchestrator.Config{
		Account:   addr,
		L1ChainID: l1Cfg.ChainID,
		L2ChainID: l2Cfg.ChainID,
	})

	ctx, cancel := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	metricsSrv := &http.Server{Addr: cliCtx.String(metricsAddrFlag.Name), Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		if err2 := metricsSrv.ListenAndServe(); err2 != nil && !errors.Is(err2, http.ErrServerClosed) {
			return fmt.Errorf("can't start listener for prometheus metrics: %w", err2)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsSrv.Close()
	})
	g.Go(func() error {
		rec.Start(gctx)
		return nil
	})
	if persister != nil {
		g.Go(func() error {
			persister.Start(gctx)
			return nil
		})
	}
	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger, s, operator, rec, presenter.Config{
			Account:   addr,
			L1ChainID: l1Cfg.ChainID,
			L2ChainID: l2Cfg.ChainID,
		})
		g.Go(func() error {
			return pr.Serve(gctx, cfg.Presenter.Host)
		})
	}

	<-gctx.Done()
	logger.Warn("caught termination signal, gracefully terminating")
	return g.Wait()
}
