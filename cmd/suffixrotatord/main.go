// Command suffixrotatord runs the suffix rotation core's API and background
// jobs as a single process (spec.md §5.1).
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrotate/suffixcore/internal/alertwebhook"
	"github.com/adrotate/suffixcore/internal/api"
	"github.com/adrotate/suffixcore/internal/buildinfo"
	"github.com/adrotate/suffixcore/internal/clickscheduler"
	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/geoip"
	"github.com/adrotate/suffixcore/internal/jobs"
	"github.com/adrotate/suffixcore/internal/lease"
	"github.com/adrotate/suffixcore/internal/progress"
	"github.com/adrotate/suffixcore/internal/proxyselect"
	"github.com/adrotate/suffixcore/internal/recovery"
	"github.com/adrotate/suffixcore/internal/stock"
	"github.com/adrotate/suffixcore/internal/store"
	"github.com/adrotate/suffixcore/internal/suffixgen"
)

func main() {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fatalf("%v", err)
	}
	log.Printf("suffixrotatord %s (commit %s, built %s) starting", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	st, dbCloser, err := store.Bootstrap(envCfg.StateDir)
	if err != nil {
		fatalf("store bootstrap: %v", err)
	}
	defer dbCloser.Close()
	log.Println("store bootstrap complete")

	cfgMgr, err := config.NewManager(st)
	if err != nil {
		fatalf("config manager: %v", err)
	}
	if envCfg.AlertWebhookURL != "" && cfgMgr.Current().AlertWebhookURL == "" {
		if _, err := cfgMgr.Patch(config.RuntimeConfigPatch{AlertWebhookURL: &envCfg.AlertWebhookURL}); err != nil {
			log.Printf("seed alert webhook url from env: %v", err)
		}
	}
	cfg := cfgMgr.Current

	selector, err := proxyselect.New(st)
	if err != nil {
		fatalf("proxy selector: %v", err)
	}
	generator := suffixgen.New(selector, func() bool { return cfg().AllowMockSuffix })
	producer := stock.New(st, generator, cfg)

	replenish := func(userID, campaignID string) {
		c, err := st.GetCampaign(userID, campaignID)
		if err != nil {
			log.Printf("[replenish] lookup campaign %s/%s: %v", userID, campaignID, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		producer.ProduceForCampaign(ctx, *c, "lease_triggered", false)
	}
	leaseEngine := lease.New(st, cfg, replenish)

	clickExecutor := clickscheduler.New(st, selector)
	recoverySvc := recovery.New(st, cfg)
	alertNotifier := alertwebhook.New()

	geoSvc := geoip.NewService(geoip.ServiceConfig{
		DBPath:         envCfg.GeoIPDBPath,
		ReloadSchedule: envCfg.GeoIPReloadSchedule,
	})
	if err := geoSvc.Start(); err != nil {
		log.Printf("geoip service start (non-fatal): %v", err)
	}

	jobRegistry, err := jobs.New()
	if err != nil {
		fatalf("job registry: %v", err)
	}
	registerJobs(jobRegistry, producer, recoverySvc, clickExecutor, alertNotifier, cfg)
	overlay, err := jobs.LoadOverlay(envCfg.JobsConfigFile)
	if err != nil {
		fatalf("job overlay: %v", err)
	}
	if err := jobRegistry.Apply(overlay); err != nil {
		fatalf("job overlay: %v", err)
	}
	jobRegistry.Start()
	log.Println("job registry started")

	progressBroker := progress.NewBroker()

	srv := api.NewServer(api.Deps{
		Port:            envCfg.APIPort,
		AdminToken:      envCfg.AdminToken,
		CronSecret:      envCfg.CronSharedSecret,
		APIMaxBodyBytes: int64(envCfg.APIMaxBodyBytes),
		KeyResolver:     api.StoreKeyResolver{Store: st},
		Lease:           leaseEngine,
		Campaigns:       st,
		ClickTasks:      st,
		Alerts:          st,
		Jobs:            jobRegistry,
		Config:          cfgMgr,
		Progress:        progressBroker,
		Producer:        producer,
	})

	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("API server starting on :%d", envCfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runtimeErr error
	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down...", sig)
	case err := <-serverErrCh:
		runtimeErr = err
		log.Printf("server runtime error (%v), shutting down...", err)
	}

	// Stop event sources first (jobs, geoip reload), then the HTTP server,
	// then persistence last.
	jobRegistry.Stop()
	log.Println("job registry stopped")

	geoSvc.Stop()
	log.Println("geoip service stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("api server shutdown error: %v", err)
	}
	log.Println("api server stopped")

	if runtimeErr != nil {
		fatalf("runtime server error: %v", runtimeErr)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}

// registerJobs wires every spec.md §4.H default job: the three recovery
// sweeps plus the three externally-triggerable production jobs. The
// production jobs' intervals are read from the runtime config once, at
// registration; a later change to the config does not reschedule them.
func registerJobs(
	reg *jobs.Registry,
	producer *stock.Producer,
	recoverySvc *recovery.Services,
	clickExecutor *clickscheduler.Executor,
	alertNotifier *alertwebhook.Notifier,
	cfg func() *config.RuntimeConfig,
) {
	must := func(err error) {
		if err != nil {
			fatalf("register job: %v", err)
		}
	}

	must(reg.Register(jobs.Definition{
		Name:            "stock_replenish",
		Description:     "top up suffix stock for every eligible campaign",
		IntervalMinutes: cfg().StockReplenishIntervalMinutes,
		Enabled:         true,
		Handler: func(ctx context.Context) error {
			_, err := producer.Sweep(ctx, "scheduled")
			return err
		},
	}))

	must(reg.Register(jobs.Definition{
		Name:            "monitoring_alert",
		Description:     "evaluate alert rules and notify the configured webhook",
		IntervalMinutes: cfg().MonitoringAlertIntervalMinutes,
		Enabled:         true,
		Handler: func(ctx context.Context) error {
			alerts, err := recoverySvc.EvaluateAlerts(time.Now())
			url := cfg().AlertWebhookURL
			for _, a := range alerts {
				alertNotifier.Notify(ctx, url, a)
			}
			return err
		},
	}))

	must(reg.Register(jobs.Definition{
		Name:            "click_task_execute",
		Description:     "execute due click-task items",
		IntervalMinutes: cfg().ClickTaskExecuteIntervalMinutes,
		Enabled:         true,
		Handler:         clickExecutor.Tick,
	}))

	must(reg.Register(jobs.Definition{
		Name:            "lease_expiry",
		Description:     "expire stale leases past the 15 minute lease TTL",
		IntervalMinutes: 5,
		Enabled:         true,
		Handler: func(ctx context.Context) error {
			_, err := recoverySvc.ExpireLeases(time.Now())
			return err
		},
	}))

	must(reg.Register(jobs.Definition{
		Name:            "stock_aging",
		Description:     "expire unclaimed stock items past the 48 hour suffix TTL",
		IntervalMinutes: 60,
		Enabled:         true,
		Handler: func(ctx context.Context) error {
			_, err := recoverySvc.ExpireStock(time.Now())
			return err
		},
	}))

	must(reg.Register(jobs.Definition{
		Name:            "exit_ip_reap",
		Description:     "delete expired exit-IP dedup ledger rows",
		IntervalMinutes: 60,
		Enabled:         true,
		Handler: func(ctx context.Context) error {
			_, err := recoverySvc.ReapExitIPUsages(time.Now())
			return err
		},
	}))
}
