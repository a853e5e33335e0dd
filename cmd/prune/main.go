// Command prune runs a single pruning sweep (§4.8) and exits, for use
// from a cron job or a manual operator invocation, the way the original
// implementation exposed pruning as a separate CLI subcommand rather
// than only as a background loop inside the daemon.
package main

import (
	"context"
	"log"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/config"
	"github.com/nes-lab/shepherd-webapi/internal/prune"
	"github.com/nes-lab/shepherd-webapi/internal/quota"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var st store.Store
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("[STORE] connecting to postgres: %v", err)
		}
		defer pg.Close()
		st = pg
	default:
		log.Println("[PRUNE] memory store has no persisted data to prune across process runs, nothing to do")
		return
	}

	q := quota.New(st, quota.Defaults{MaxDuration: cfg.DefaultMaxDuration, MaxStorage: cfg.DefaultMaxStorage})
	p := prune.New(st, q, prune.Config{
		AgeMaxExperiment: cfg.PruneAgeMaxExperiment,
		AgeMaxUser:       cfg.PruneAgeMaxUser,
		AgeMinExperiment: cfg.PruneAgeMinExperiment,
		DryRun:           cfg.PruneDryRun,
	})
	count, freed, err := p.Sweep(ctx)
	if err != nil {
		log.Fatalf("[PRUNE] sweep failed: %v", err)
	}
	verb := "retired"
	if cfg.PruneDryRun {
		verb = "would retire"
	}
	log.Printf("[PRUNE] %s %d experiment(s), freeing %d bytes", verb, count, freed)
}
