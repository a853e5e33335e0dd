package store

import (
	"context"
	"time"
)

// Store is the document-store abstraction every other component talks
// to. Implementations: MemoryStore (tests, dry-run deployments) and
// PostgresStore (durable production backend). Redis is not a Store
// backend: the scheduler's startup guard and the herd's inventory cache
// talk to a Redis client directly.
//
// Mutating methods on WebExperiment and TestbedStatus take an
// expectedVersion and return ErrVersionConflict if the stored version has
// moved on; callers always reload and re-derive before retrying. Each
// method only ever persists the fields named in its signature — it never
// overwrites fields it doesn't own, so a concurrent writer of a disjoint
// field set is never clobbered.
type Store interface {
	// Users.
	InsertUser(ctx context.Context, u *User) error
	SaveUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	DeleteUser(ctx context.Context, id string) error

	// Experiment lifecycle, read side.
	InsertExperiment(ctx context.Context, e *WebExperiment) error
	GetExperiment(ctx context.Context, id string) (*WebExperiment, error)
	ListExperimentsByOwner(ctx context.Context, ownerID string) ([]*WebExperiment, error)
	ListAllExperiments(ctx context.Context) ([]*WebExperiment, error)
	ListStuckExperiments(ctx context.Context) ([]*WebExperiment, error)
	ListRunningExperiment(ctx context.Context) (*WebExperiment, error)
	ListPrunable(ctx context.Context, finishedBefore time.Time) ([]*WebExperiment, error)
	DeleteExperiment(ctx context.Context, id string, expectedVersion int) error

	// Owned by the API (out of scope); exposed here only so the thin
	// collaborator surface and tests can exercise the full lifecycle.
	ScheduleExperiment(ctx context.Context, id string, requestedAt time.Time, expectedVersion int) error

	// Owned by the Scheduler (C5). One method per protocol phase.
	NextCandidate(ctx context.Context, onlyElevated bool) (*WebExperiment, error)
	ClaimExperiment(ctx context.Context, id string, startedAt time.Time, observersRequested []string, expectedVersion int) error
	RecordPrepareError(ctx context.Context, id string, errMsg string, expectedVersion int) error
	RecordExecuted(ctx context.Context, id string, executedAt time.Time, expectedVersion int) error
	RecordCollectResult(ctx context.Context, id string, resultPaths, contentPaths map[string]string, resultSize int64, observersOutput map[string]ObserverOutput, observersOffline []string, expectedVersion int) error
	FinalizeExperiment(ctx context.Context, id string, finishedAt time.Time, schedulerError, schedulerLog string, expectedVersion int) error
	ResetStuckStart(ctx context.Context, id string, expectedVersion int) error

	// TestbedStatus, singleton with field-owned writers.
	GetTestbedStatus(ctx context.Context) (*TestbedStatus, error)
	UpdateTestbedOccupancy(ctx context.Context, busy bool, online, offline []string, lastUpdate time.Time, expectedVersion int) error
	UpdateTestbedActivation(ctx context.Context, schedulerActivatedAt *time.Time, expectedVersion int) error

	// ExperimentStats, written once by the pruner.
	InsertExperimentStats(ctx context.Context, s *ExperimentStats) error
	ListExperimentStatsByOwner(ctx context.Context, ownerID string) ([]*ExperimentStats, error)
}
