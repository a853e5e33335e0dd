// Package quota implements the per-user duration and storage limits
// consulted before an experiment may be submitted or scheduled.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

// ErrDurationExceeded and ErrStorageExceeded are returned by the may-*
// checks; callers decide whether to surface them to the submitter.
var (
	ErrDurationExceeded = errors.New("quota: requested duration exceeds the effective limit")
	ErrStorageExceeded  = errors.New("quota: accumulated result storage exceeds the effective limit")
)

// Defaults are the built-in limits applied to a user with no
// store.CustomQuota override.
type Defaults struct {
	MaxDuration time.Duration
	MaxStorage  int64
}

// Engine evaluates quota against a Store. It holds no mutable state of
// its own; every check re-reads the user and their experiments, the same
// way the teacher's rate limiters re-derive admission decisions from
// live counters rather than a cached verdict.
type Engine struct {
	store    store.Store
	defaults Defaults
}

// New returns a quota Engine backed by st, using d as the limits applied
// to users without a CustomQuota.
func New(st store.Store, d Defaults) *Engine {
	return &Engine{store: st, defaults: d}
}

// Effective returns the duration and storage limits in force for owner,
// applying their CustomQuota override if present.
func (e *Engine) Effective(ctx context.Context, ownerID string) (Defaults, error) {
	u, err := e.store.GetUserByID(ctx, ownerID)
	if err != nil {
		return Defaults{}, fmt.Errorf("quota: loading owner: %w", err)
	}
	if u.CustomQuota != nil {
		return Defaults{MaxDuration: u.CustomQuota.MaxDuration, MaxStorage: u.CustomQuota.MaxStorage}, nil
	}
	return e.defaults, nil
}

// MaySubmit checks whether a newly authored experiment of the given
// duration is within the owner's effective duration limit. It does not
// consider storage, since nothing has run yet.
func (e *Engine) MaySubmit(ctx context.Context, ownerID string, duration time.Duration) error {
	limits, err := e.Effective(ctx, ownerID)
	if err != nil {
		return err
	}
	if limits.MaxDuration > 0 && duration > limits.MaxDuration {
		return fmt.Errorf("%w: %s requested, %s allowed", ErrDurationExceeded, duration, limits.MaxDuration)
	}
	return nil
}

// MaySchedule re-checks duration at the point of requesting an execution
// time, and additionally enforces the storage limit against the owner's
// already-accumulated result size across their finished and failed
// experiments that have not been pruned.
func (e *Engine) MaySchedule(ctx context.Context, ownerID string, duration time.Duration) error {
	if err := e.MaySubmit(ctx, ownerID, duration); err != nil {
		return err
	}
	limits, err := e.Effective(ctx, ownerID)
	if err != nil {
		return err
	}
	if limits.MaxStorage <= 0 {
		return nil
	}

	used, err := e.usedStorage(ctx, ownerID)
	if err != nil {
		return err
	}
	if used > limits.MaxStorage {
		return fmt.Errorf("%w: %d bytes used, %d allowed", ErrStorageExceeded, used, limits.MaxStorage)
	}
	return nil
}

// UsedStorage returns the same accumulated-result-size figure
// MaySchedule checks against the owner's storage limit, exported for the
// pruner's over-quota sweep.
func (e *Engine) UsedStorage(ctx context.Context, ownerID string) (int64, error) {
	return e.usedStorage(ctx, ownerID)
}

func (e *Engine) usedStorage(ctx context.Context, ownerID string) (int64, error) {
	experiments, err := e.store.ListExperimentsByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("quota: listing experiments: %w", err)
	}
	var total int64
	for _, exp := range experiments {
		if lifecycle.IsTerminal(lifecycle.Derive(exp)) {
			total += exp.ResultSizeBytes
		}
	}
	return total, nil
}
