package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/herd"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

// StatusUpdater is the single writer of TestbedStatus's occupancy
// fields (§4.6): it periodically inventorizes the fleet and records
// which observers answered, independent of whether an experiment is
// currently running. Grounded on the teacher's AgentMonitor
// (coordination/agent_monitor.go), which does the same stale-heartbeat
// partition for its own fleet of agents.
type StatusUpdater struct {
	store    store.Store
	herd     herd.Herd
	interval time.Duration
}

// NewStatusUpdater returns an updater that refreshes TestbedStatus every
// interval.
func NewStatusUpdater(st store.Store, h herd.Herd, interval time.Duration) *StatusUpdater {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatusUpdater{store: st, herd: h, interval: interval}
}

// Run blocks until ctx is canceled, refreshing on every tick.
func (u *StatusUpdater) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		u.refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (u *StatusUpdater) refresh(ctx context.Context) {
	online, offline, err := u.herd.Inventorize(ctx)
	if err != nil {
		log.Printf("scheduler: status updater inventory sweep failed: %v", err)
		return
	}

	running, err := u.store.ListRunningExperiment(ctx)
	busy := err == nil && running != nil

	current, err := u.store.GetTestbedStatus(ctx)
	if err != nil {
		log.Printf("scheduler: status updater could not load current status: %v", err)
		return
	}

	if err := u.store.UpdateTestbedOccupancy(ctx, busy, online, offline, time.Now(), current.Version); err != nil {
		log.Printf("scheduler: status updater write failed: %v", err)
	}
}
