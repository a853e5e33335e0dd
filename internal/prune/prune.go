// Package prune implements the retention sweep (§4.8): it retires
// experiments matching any of three disjoint candidate sets — a user's
// whole history once they've gone inactive, an over-quota user's oldest
// experiments until they're back under their storage limit, and any
// experiment simply older than the fleet-wide retention window —
// dropping their observer result paths (logging what was dropped, the
// spec's "drop + log" resolution, never "log and keep") while retaining
// an ExperimentStats summary so historical usage reporting survives.
// Grounded on control_plane/coordination/janitor.go's periodic-scan-
// and-sweep idiom.
package prune

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/quota"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

// Config holds the three candidate-set thresholds and the sweep cadence.
type Config struct {
	// AgeMaxExperiment retires any experiment finished longer ago than
	// this, regardless of owner.
	AgeMaxExperiment time.Duration
	// AgeMaxUser retires every experiment belonging to a user inactive
	// longer than this.
	AgeMaxUser time.Duration
	// AgeMinExperiment floors the over-quota sweep: nothing finished
	// more recently than this is pruned just to bring a user back under
	// quota.
	AgeMinExperiment time.Duration
	Interval         time.Duration
	// DryRun reports what Sweep would retire and how many bytes it
	// would free, without deleting or writing anything.
	DryRun bool
}

// Pruner periodically retires experiments matching any candidate set.
type Pruner struct {
	store store.Store
	quota *quota.Engine
	cfg   Config
}

// New returns a Pruner backed by st, consulting q (may be nil, in which
// case the over-quota candidate set is always empty) for per-user
// storage limits.
func New(st store.Store, q *quota.Engine, cfg Config) *Pruner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Pruner{store: st, quota: q, cfg: cfg}
}

// Run blocks until ctx is canceled, sweeping on every tick.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		count, freed, err := p.Sweep(ctx)
		if err != nil {
			log.Printf("prune: sweep failed: %v", err)
		} else if count > 0 {
			verb := "retired"
			if p.cfg.DryRun {
				verb = "would retire"
			}
			log.Printf("prune: %s %d experiment(s), freeing %d bytes", verb, count, freed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep unions the three candidate sets and either retires every member
// or, in DryRun mode, only totals the bytes it would free. In DryRun
// mode it returns the candidate count and their projected bytes;
// otherwise the count and bytes of the candidates retired successfully.
func (p *Pruner) Sweep(ctx context.Context) (int, int64, error) {
	candidates, err := p.candidates(ctx)
	if err != nil {
		return 0, 0, err
	}

	var freed int64
	if p.cfg.DryRun {
		for _, e := range candidates {
			freed += e.ResultSizeBytes
		}
		return len(candidates), freed, nil
	}

	count := 0
	for _, e := range candidates {
		if err := p.retire(ctx, e); err != nil {
			log.Printf("prune: retiring experiment %s: %v", e.ID, err)
			continue
		}
		count++
		freed += e.ResultSizeBytes
	}
	return count, freed, nil
}

// candidates unions the three disjoint sets from §4.8, deduplicated by
// experiment ID. Every set is restricted to terminal (finished or
// failed) experiments — nothing still running is ever a candidate.
func (p *Pruner) candidates(ctx context.Context) (map[string]*store.WebExperiment, error) {
	out := make(map[string]*store.WebExperiment)

	if p.cfg.AgeMaxExperiment > 0 {
		cutoff := time.Now().Add(-p.cfg.AgeMaxExperiment)
		old, err := p.store.ListPrunable(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("prune: listing experiments older than %s: %w", p.cfg.AgeMaxExperiment, err)
		}
		for _, e := range old {
			out[e.ID] = e
		}
	}

	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("prune: listing users: %w", err)
	}

	if p.cfg.AgeMaxUser > 0 {
		for _, u := range users {
			if time.Since(u.LastActiveAt) < p.cfg.AgeMaxUser {
				continue
			}
			owned, err := p.store.ListExperimentsByOwner(ctx, u.ID)
			if err != nil {
				log.Printf("prune: listing experiments for inactive user %s: %v", u.ID, err)
				continue
			}
			for _, e := range owned {
				if e.FinishedAt == nil {
					continue
				}
				out[e.ID] = e
			}
		}
	}

	if p.quota != nil {
		for _, u := range users {
			over, err := p.overQuota(ctx, u)
			if err != nil {
				log.Printf("prune: checking quota for user %s: %v", u.ID, err)
				continue
			}
			for _, e := range over {
				out[e.ID] = e
			}
		}
	}

	return out, nil
}

// overQuota returns u's oldest terminal experiments (excluding anything
// younger than AgeMinExperiment), oldest-finished first, up to however
// many bring u back under their effective storage limit.
func (p *Pruner) overQuota(ctx context.Context, u *store.User) ([]*store.WebExperiment, error) {
	limits, err := p.quota.Effective(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if limits.MaxStorage <= 0 {
		return nil, nil
	}
	used, err := p.quota.UsedStorage(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if used <= limits.MaxStorage {
		return nil, nil
	}

	owned, err := p.store.ListExperimentsByOwner(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	floor := time.Now().Add(-p.cfg.AgeMinExperiment)
	var eligible []*store.WebExperiment
	for _, e := range owned {
		if e.FinishedAt == nil || e.FinishedAt.After(floor) {
			continue
		}
		eligible = append(eligible, e)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].FinishedAt.Before(*eligible[j].FinishedAt) })

	var picked []*store.WebExperiment
	for _, e := range eligible {
		if used <= limits.MaxStorage {
			break
		}
		picked = append(picked, e)
		used -= e.ResultSizeBytes
	}
	return picked, nil
}

func (p *Pruner) retire(ctx context.Context, e *store.WebExperiment) error {
	state := lifecycle.Derive(e)

	hadError := e.SchedulerError != ""
	for _, out := range e.ObserversOutput {
		if out.ExitCode > 0 || !out.HasData {
			hadError = true
		}
	}
	if len(e.ObserversOffline) > 0 {
		hadError = true
	}

	stats := &store.ExperimentStats{
		ExperimentID: e.ID,
		OwnerID:      e.OwnerID,
		CreatedAt:    e.CreatedAt,
		StartedAt:    e.StartedAt,
		FinishedAt:   e.FinishedAt,
		PrunedAt:     time.Now(),
		ResultSize:   e.ResultSizeBytes,
		FinalState:   string(state),
		HadError:     hadError,
		ErrorSummary: e.SchedulerError,
	}
	if e.StartedAt != nil && e.FinishedAt != nil {
		stats.Duration = e.FinishedAt.Sub(*e.StartedAt)
	}
	if err := p.store.InsertExperimentStats(ctx, stats); err != nil {
		return fmt.Errorf("recording stats: %w", err)
	}

	for observer, path := range e.ResultPaths {
		log.Printf("prune: dropping result path for experiment %s observer %s: %s", e.ID, observer, path)
	}
	for observer, path := range e.ContentPaths {
		log.Printf("prune: dropping content path for experiment %s observer %s: %s", e.ID, observer, path)
	}

	if err := p.store.DeleteExperiment(ctx, e.ID, e.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Something else touched the record since the list scan;
			// skip it this round rather than racing a concurrent writer.
			return nil
		}
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}
