// Package herd implements the fleet driver (C2): the one place that
// talks to observers over SSH, and the boundary the scheduler calls
// through for every fleet operation. A DryRunHerd implementation lets a
// deployment exercise the full scheduler loop against no real hardware.
package herd

import (
	"context"
	"time"
)

// TaskResult is the outcome of a single observer-scoped command.
type TaskResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Herd is the fleet driver interface. Every method is scoped either to
// one observer or to a named subset. A method scoped to one observer
// returns an error when that observer cannot be reached. Methods that
// take a subset skip the observers they cannot reach rather than failing
// the whole call: Open and Inventorize report them back, while
// FindConsensusTime and MinSpaceLeft fail only when no observer answers.
type Herd interface {
	// Open establishes (or reuses) a session to each named observer,
	// returning the subset that could not be reached.
	Open(ctx context.Context, observers []string) (unreachable []string, err error)

	// RunTask executes command on observer and returns its result.
	RunTask(ctx context.Context, observer, command string) (TaskResult, error)

	// ServiceIsActive reports whether a systemd-style unit is active on
	// observer.
	ServiceIsActive(ctx context.Context, observer, service string) (bool, error)

	// ServiceIsFailed reports whether a systemd-style unit is in the
	// failed state on observer. Distinct from !ServiceIsActive: a unit
	// that hasn't started yet is inactive but not failed.
	ServiceIsFailed(ctx context.Context, observer, service string) (bool, error)

	// ServiceGetLogs returns unit's log output on observer since the
	// given time.
	ServiceGetLogs(ctx context.Context, observer, service string, since time.Time) (string, error)

	// ServiceEraseLog clears unit's accumulated log output on observer,
	// part of the per-observer cleanup between experiments.
	ServiceEraseLog(ctx context.Context, observer, service string) error

	// FindConsensusTime queries each reachable observer's clock and
	// returns the median. Unreachable observers are excluded rather than
	// failing the call; it fails only if none are reachable.
	FindConsensusTime(ctx context.Context, observers []string) (time.Time, error)

	// KillSheepProcess stops the shepherd sheep process on observer.
	KillSheepProcess(ctx context.Context, observer string) error

	// Reboot reboots observer.
	Reboot(ctx context.Context, observer string) error

	// MinSpaceLeft returns the smallest free-space figure (bytes) across
	// observers, used to refuse scheduling an experiment the fleet can't
	// store.
	MinSpaceLeft(ctx context.Context, observers []string) (int64, error)

	// Resync pushes firmware/content the observer may be missing.
	Resync(ctx context.Context, observer string) error

	// Inventorize partitions the full configured fleet into observers
	// that answered and observers that did not.
	Inventorize(ctx context.Context) (online, offline []string, err error)
}
