// Command escrowd runs the escrow orchestrator: it owns the scheduler that
// drives the LifecycleEngine's handlers (4.7), the ChainMonitor
// reconciliation pass (4.8), and the hot-wallet lease reaper (4.4), and it
// exposes the process's health, readiness and metrics surface over HTTP.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/chainmonitor"
	"github.com/escrowlabs/escrowd/pkg/config"
	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/lifecycle"
	"github.com/escrowlabs/escrowd/pkg/observer"
	"github.com/escrowlabs/escrowd/pkg/scheduler"
	"github.com/escrowlabs/escrowd/pkg/selector"
	"github.com/escrowlabs/escrowd/pkg/server"
	"github.com/escrowlabs/escrowd/pkg/walletlock"
)

// shelleyGenesis and secondsPerSlot ground the default Slotter in Cardano's
// post-Shelley era, where slots tick one per second from a fixed genesis
// instant. A ChainClient backed by a real node would instead read these
// parameters from its era/genesis config; until one is wired, every network
// shares this approximation.
var shelleyGenesis = time.Date(2020, time.July, 29, 21, 44, 51, 0, time.UTC)

const secondsPerSlot = 1

func defaultSlotter(t time.Time) int64 {
	return int64(t.Sub(shelleyGenesis).Seconds()) / secondsPerSlot
}

func main() {
	logger := log.New(os.Stdout, "[escrowd] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateForDevelopment(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	db, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.MigrateUp(ctx); err != nil {
		logger.Fatalf("run migrations: %v", err)
	}

	repos := database.NewRepositories(db)

	var chain chainclient.Client = chainclient.NewMemClient()

	bus := observer.New(logger)
	bus.Subscribe(observer.NewMetrics(prometheus.DefaultRegisterer))
	if cfg.WebhookURL != "" {
		bus.Subscribe(observer.NewWebhook(cfg.WebhookURL, logger))
	}

	txTimeout := time.Duration(cfg.TxStuckMs) * time.Millisecond

	sel := selector.New(db, repos, txTimeout)
	signer := lifecycle.NewWalletSigner(cfg.EncryptionKey)

	engine := lifecycle.New(
		db, repos, chain, sel, signer, bus,
		defaultSlotter, cfg.ValiditySlotBuffer, cfg.CooldownPadMs,
		txTimeout,
		logger,
	)

	monitor := chainmonitor.New(db, repos, chain, bus, cfg.StuckTxTimeout, logger)

	reaper := walletlock.NewReaper(
		db, repos.Wallets, repos.Transactions,
		cfg.MaxLeaseAge, cfg.StuckTxTimeout,
		txTimeout,
		logger,
	)

	sched := scheduler.New(logger)
	schedulerTick := time.Duration(cfg.SchedulerTickMs) * time.Millisecond
	for _, spec := range lifecycle.Specs {
		if err := sched.AddJob(string(spec.Action), schedulerTick, scheduler.LifecycleJob(engine, spec, cfg.MaxBatchSize, logger)); err != nil {
			logger.Fatalf("register lifecycle job %s: %v", spec.Action, err)
		}
	}
	if err := sched.AddJob("chain_monitor", time.Duration(cfg.ChainMonitorTickMs)*time.Millisecond, scheduler.ChainMonitorJob(monitor)); err != nil {
		logger.Fatalf("register chain monitor job: %v", err)
	}
	if err := sched.AddJob("wallet_reaper", cfg.WalletReaperEvery, scheduler.WalletReaperJob(reaper)); err != nil {
		logger.Fatalf("register wallet reaper job: %v", err)
	}
	if err := sched.RunNow(ctx, "wallet_reaper", time.Now()); err != nil {
		logger.Printf("startup wallet lease sweep: %v", err)
	}
	sched.Start()

	health := server.NewHealthHandlers(db, sched)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", health.HandleLiveness)
	healthMux.HandleFunc("/ready", health.HandleReadiness)
	healthMux.HandleFunc("/status", health.HandleStatus)
	healthServer := &http.Server{Addr: cfg.HealthAddr, Handler: healthMux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", server.MetricsHandler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Printf("health/readiness listening on %s", cfg.HealthAddr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("health server: %v", err)
		}
	}()
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("metrics server: %v", err)
		}
	}()

	logger.Printf("escrowd started: network=%s scheduler=%s", cfg.Network, sched.State())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Printf("scheduler stop: %v", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("health server shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown: %v", err)
	}

	logger.Println("escrowd stopped")
}
