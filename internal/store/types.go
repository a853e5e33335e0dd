// Package store defines the persisted record types and the Store
// abstraction used by every other component to read and write them.
package store

import "time"

// Role is a user's authorization level.
type Role string

const (
	RoleUser     Role = "user"
	RoleElevated Role = "elevated"
	RoleAdmin    Role = "admin"
)

// CustomQuota overrides the default quota for a single user. A nil
// *CustomQuota on a User means "use the default limits".
type CustomQuota struct {
	MaxDuration time.Duration `json:"max_duration" db:"max_duration"`
	MaxStorage  int64         `json:"max_storage" db:"max_storage"`
	Note        string        `json:"note" db:"note"`
}

// User is an account able to own WebExperiments.
type User struct {
	ID           string       `json:"id" db:"id"`
	Email        string       `json:"email" db:"email"`
	PasswordHash string       `json:"password_hash" db:"password_hash"`
	Role         Role         `json:"role" db:"role"`
	Enabled      bool         `json:"enabled" db:"enabled"`
	Verified     bool         `json:"verified" db:"verified"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	LastActiveAt time.Time    `json:"last_active_at" db:"last_active_at"`
	CustomQuota  *CustomQuota `json:"custom_quota,omitempty" db:"custom_quota"`
}

// TargetConfig describes one observer's role in an experiment: which
// firmware to flash and whether GPIO tracing is requested.
type TargetConfig struct {
	ObserverID     string `json:"observer_id" db:"observer_id"`
	FirmwareA      string `json:"firmware_a" db:"firmware_a"`
	FirmwareB      string `json:"firmware_b" db:"firmware_b"`
	EnergyEnvName  string `json:"energy_env_name" db:"energy_env_name"`
	TracingEnabled bool   `json:"tracing_enabled" db:"tracing_enabled"`
}

// Experiment is the declarative, owner-authored description of what to
// run. Everything below this type on a WebExperiment is the scheduler's
// and herd's record of what actually happened.
type Experiment struct {
	Name          string         `json:"name" db:"name"`
	Duration      time.Duration  `json:"duration" db:"duration"`
	Targets       []TargetConfig `json:"targets" db:"targets"`
	EmailOnFinish bool           `json:"email_on_finish" db:"email_on_finish"`
}

// ObserverOutput is one observer's reported outcome for an experiment.
type ObserverOutput struct {
	ExitCode int    `json:"exit_code" db:"exit_code"`
	Stdout   string `json:"stdout" db:"stdout"`
	Stderr   string `json:"stderr" db:"stderr"`
	HasData  bool   `json:"has_data" db:"has_data"`
}

// WebExperiment is the full persisted record for one experiment run.
// Its lifecycle state is never stored directly; it is derived from the
// timestamp fields below by internal/lifecycle.Derive.
//
// Field ownership is split: the API (out of scope here) owns Experiment,
// RequestedExecutionAt, and quota bookkeeping; the Scheduler (C5) owns
// every other field from StartedAt down. Version is bumped on every
// persisted change and used for optimistic concurrency by the Store.
type WebExperiment struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string      `json:"owner_id" db:"owner_id"`
	Experiment Experiment `json:"experiment" db:"experiment"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	RequestedExecutionAt *time.Time `json:"requested_execution_at,omitempty" db:"requested_execution_at"`

	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`

	ObserversRequested []string                  `json:"observers_requested,omitempty" db:"observers_requested"`
	ObserversOffline   []string                  `json:"observers_offline,omitempty" db:"observers_offline"`
	ResultPaths        map[string]string         `json:"result_paths,omitempty" db:"result_paths"`
	ContentPaths       map[string]string         `json:"content_paths,omitempty" db:"content_paths"`
	ResultSizeBytes    int64                     `json:"result_size_bytes" db:"result_size_bytes"`
	ObserversOutput    map[string]ObserverOutput `json:"observers_output,omitempty" db:"observers_output"`

	SchedulerError string `json:"scheduler_error,omitempty" db:"scheduler_error"`
	SchedulerLog   string `json:"scheduler_log,omitempty" db:"scheduler_log"`

	Version int `json:"version" db:"version"`
}

// TestbedStatus is the single, singleton, multi-writer status record.
// Distinct fields are owned by distinct writers: the scheduler's status
// updater (§4.6) owns Busy/ObserversOnline/ObserversOffline/LastUpdate;
// the (out-of-scope) API owns the redirect/webapi activation timestamps.
// Writers must only ever persist the fields they own, via
// UpdateTestbedOccupancy or UpdateTestbedActivation, never a blind
// whole-record overwrite.
type TestbedStatus struct {
	Busy                 bool       `json:"busy" db:"busy"`
	ObserversOnline      []string   `json:"observers_online" db:"observers_online"`
	ObserversOffline     []string   `json:"observers_offline" db:"observers_offline"`
	LastUpdate           time.Time  `json:"last_update" db:"last_update"`
	SchedulerActivatedAt *time.Time `json:"scheduler_activated_at,omitempty" db:"scheduler_activated_at"`
	RedirectActivatedAt  *time.Time `json:"redirect_activated_at,omitempty" db:"redirect_activated_at"`
	WebapiActivatedAt    *time.Time `json:"webapi_activated_at,omitempty" db:"webapi_activated_at"`
	DryRun               bool       `json:"dry_run" db:"dry_run"`
	Version              int        `json:"version" db:"version"`
}

// ExperimentStats is a retained summary of a WebExperiment that survives
// after the full record (and its result files) has been pruned.
type ExperimentStats struct {
	ExperimentID string        `json:"experiment_id" db:"experiment_id"`
	OwnerID      string        `json:"owner_id" db:"owner_id"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty" db:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty" db:"finished_at"`
	PrunedAt     time.Time     `json:"pruned_at" db:"pruned_at"`
	Duration     time.Duration `json:"duration" db:"duration"`
	ResultSize   int64         `json:"result_size_bytes" db:"result_size_bytes"`
	FinalState   string        `json:"final_state" db:"final_state"`
	HadError     bool          `json:"had_error" db:"had_error"`
	ErrorSummary string        `json:"error_summary,omitempty" db:"error_summary"`
}
