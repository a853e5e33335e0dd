// Package lifecycle derives a WebExperiment's logical state from its
// timestamp fields. There is no stored state column: the state is always
// a pure function of what has actually happened, so a crashed scheduler
// restarting mid-run can never observe state inconsistent with its own
// writes.
package lifecycle

import "github.com/nes-lab/shepherd-webapi/internal/store"

// State is one point in an experiment's lifecycle.
type State string

const (
	// StateCreated: submitted, not yet requested for execution.
	StateCreated State = "created"
	// StateScheduled: a requested execution time is set but the
	// scheduler has not yet claimed it.
	StateScheduled State = "scheduled"
	// StateRunning: claimed by the scheduler and not yet finished.
	StateRunning State = "running"
	// StateFinished: completed with at least one observer's results
	// recorded, regardless of whether a scheduler error was also set.
	StateFinished State = "finished"
	// StateFailed: completed with no observer's results recorded.
	StateFailed State = "failed"
)

// Derive computes the state of e. It never mutates e.
//
// Rules, in order:
//  1. FinishedAt set and ResultPaths non-empty -> finished.
//  2. FinishedAt set and ResultPaths empty -> failed.
//  3. StartedAt set and FinishedAt unset -> running.
//  4. RequestedExecutionAt set and StartedAt unset -> scheduled.
//  5. otherwise -> created.
//
// This keys off ResultPaths, not SchedulerError: an experiment can record
// a scheduler error (e.g. one offline observer) and still be finished, as
// long as some observer produced results. A non-empty SchedulerError is a
// detail surfaced to the owner, not what decides finished vs failed.
func Derive(e *store.WebExperiment) State {
	switch {
	case e.FinishedAt != nil && len(e.ResultPaths) > 0:
		return StateFinished
	case e.FinishedAt != nil && len(e.ResultPaths) == 0:
		return StateFailed
	case e.StartedAt != nil:
		return StateRunning
	case e.RequestedExecutionAt != nil:
		return StateScheduled
	default:
		return StateCreated
	}
}

// IsTerminal reports whether s is a state the scheduler will never
// transition out of.
func IsTerminal(s State) bool {
	return s == StateFinished || s == StateFailed
}

// CanSchedule reports whether e is eligible to receive a requested
// execution time (i.e. still in StateCreated).
func CanSchedule(e *store.WebExperiment) bool {
	return Derive(e) == StateCreated
}

// CanClaim reports whether e is eligible for the scheduler to claim,
// i.e. it's waiting (StateScheduled).
func CanClaim(e *store.WebExperiment) bool {
	return Derive(e) == StateScheduled
}
