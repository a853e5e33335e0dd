// Command scheduler runs the shepherd control plane daemon: the
// scheduler (C5), the testbed status updater (§4.6), and the pruner
// (§4.8), plus the thin httpapi collaborator surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nes-lab/shepherd-webapi/internal/config"
	"github.com/nes-lab/shepherd-webapi/internal/herd"
	"github.com/nes-lab/shepherd-webapi/internal/httpapi"
	"github.com/nes-lab/shepherd-webapi/internal/notifier"
	"github.com/nes-lab/shepherd-webapi/internal/prune"
	"github.com/nes-lab/shepherd-webapi/internal/quota"
	"github.com/nes-lab/shepherd-webapi/internal/scheduler"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}
	log.Printf("[CONFIG] store=%s dry_run=%v wait_delay=%v", cfg.StoreBackend, cfg.DryRun, cfg.SchedulerWaitDelay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := buildStore(ctx, cfg)
	if closeStore != nil {
		defer closeStore()
	}

	var h herd.Herd
	if cfg.DryRun {
		h = herd.NewDryRunHerd(fleetFromConfig(cfg))
		log.Println("[HERD] dry-run mode: no SSH connections will be made")
	} else {
		real, err := herd.NewRealHerd(herd.Config{
			Observers:   observerAddrsFromConfig(cfg),
			User:        cfg.SSHUser,
			KeyPath:     cfg.SSHKeyPath,
			Port:        cfg.SSHPort,
			DialTimeout: cfg.SSHDialTimeout,
			DialRetries: uint64(cfg.SSHDialRetries),
		})
		if err != nil {
			log.Fatalf("[HERD] %v", err)
		}
		h = real
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		lease := scheduler.NewStartupLease(redisClient, "primary", 60*time.Second)
		if err := lease.Acquire(ctx); err != nil {
			log.Fatalf("[SCHEDULER] %v", err)
		}
		defer lease.Release()
		go renewLeaseLoop(ctx, lease)
	}

	n := notifier.NewSMTPNotifier(notifier.SMTPConfig{
		Host:            cfg.SMTPHost,
		Port:            cfg.SMTPPort,
		Username:        cfg.SMTPUsername,
		Password:        cfg.SMTPPassword,
		From:            cfg.SMTPFrom,
		AdminRecipients: cfg.SMTPAdminRecipients,
	}, st, cfg.MailRatePerMinute)

	sched := scheduler.New(st, h, n, scheduler.Config{
		WaitDelay:    cfg.SchedulerWaitDelay,
		OnlyElevated: cfg.SchedulerOnlyElevated,
		DryRun:       cfg.DryRun,
	})
	statusUpdater := scheduler.NewStatusUpdater(st, h, cfg.StatusUpdateInterval)

	q := quota.New(st, quota.Defaults{MaxDuration: cfg.DefaultMaxDuration, MaxStorage: cfg.DefaultMaxStorage})
	pruner := prune.New(st, q, prune.Config{
		AgeMaxExperiment: cfg.PruneAgeMaxExperiment,
		AgeMaxUser:       cfg.PruneAgeMaxUser,
		AgeMinExperiment: cfg.PruneAgeMinExperiment,
		Interval:         cfg.PruneInterval,
		DryRun:           cfg.PruneDryRun,
	})
	api := httpapi.New(st, q)
	mux := http.NewServeMux()
	api.Routes(mux)

	go statusUpdater.Run(ctx)
	go pruner.Run(ctx)
	go serveHTTP(ctx, cfg.HTTPAddr, mux)
	go serveMetrics(ctx, cfg.MetricsAddr)

	log.Println("[SCHEDULER] starting main loop")
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("[SCHEDULER] run loop exited: %v", err)
	}
	log.Println("[SCHEDULER] shut down")
}

func buildStore(ctx context.Context, cfg config.Config) (store.Store, func()) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("[STORE] connecting to postgres: %v", err)
		}
		return pg, pg.Close
	default:
		return store.NewMemoryStore(), nil
	}
}

func renewLeaseLoop(ctx context.Context, lease *scheduler.StartupLease) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Renew(ctx); err != nil {
				log.Fatalf("[SCHEDULER] %v", err)
			}
		}
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[HTTP] %v", err)
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serveHTTP(ctx, addr, mux)
}

// fleetFromConfig and observerAddrsFromConfig are placeholders for a
// real fleet inventory source (e.g. a config file or a service
// registry); the spec leaves fleet membership discovery to deployment
// configuration, not this scheduler.
func fleetFromConfig(cfg config.Config) []string {
	return []string{}
}

func observerAddrsFromConfig(cfg config.Config) map[string]string {
	return map[string]string{}
}
