package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against PostgreSQL, the durable backend
// for production deployments.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore dials the pool and pings it before returning.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// --- Users ---

func (s *PostgresStore) InsertUser(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, enabled, verified, created_at, last_active_at, custom_quota)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.Enabled, u.Verified, u.CreatedAt, u.LastActiveAt, u.CustomQuota)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PostgresStore) SaveUser(ctx context.Context, u *User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET email=$2, password_hash=$3, role=$4, enabled=$5, verified=$6, last_active_at=$7, custom_quota=$8
		WHERE id=$1
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.Enabled, u.Verified, u.LastActiveAt, u.CustomQuota)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, enabled, verified, created_at, last_active_at, custom_quota
		FROM users WHERE id=$1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Enabled, &u.Verified, &u.CreatedAt, &u.LastActiveAt, &u.CustomQuota)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, enabled, verified, created_at, last_active_at, custom_quota
		FROM users WHERE email=$1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Enabled, &u.Verified, &u.CreatedAt, &u.LastActiveAt, &u.CustomQuota)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, password_hash, role, enabled, verified, created_at, last_active_at, custom_quota
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Enabled, &u.Verified, &u.CreatedAt, &u.LastActiveAt, &u.CustomQuota); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM web_experiments WHERE owner_id=$1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// --- Experiments ---

func (s *PostgresStore) InsertExperiment(ctx context.Context, e *WebExperiment) error {
	e.Version = 1
	_, err := s.pool.Exec(ctx, `
		INSERT INTO web_experiments (id, owner_id, experiment, created_at, requested_execution_at, version)
		VALUES ($1, $2, $3, $4, $5, 1)
	`, e.ID, e.OwnerID, e.Experiment, e.CreatedAt, e.RequestedExecutionAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PostgresStore) GetExperiment(ctx context.Context, id string) (*WebExperiment, error) {
	return s.scanExperiment(ctx, `
		SELECT id, owner_id, experiment, created_at, requested_execution_at, started_at, executed_at,
		       finished_at, observers_requested, observers_offline, result_paths, content_paths,
		       result_size_bytes, observers_output, scheduler_error, scheduler_log, version
		FROM web_experiments WHERE id=$1
	`, id)
}

func (s *PostgresStore) scanExperiment(ctx context.Context, query string, args ...any) (*WebExperiment, error) {
	var e WebExperiment
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&e.ID, &e.OwnerID, &e.Experiment, &e.CreatedAt, &e.RequestedExecutionAt, &e.StartedAt, &e.ExecutedAt,
		&e.FinishedAt, &e.ObserversRequested, &e.ObserversOffline, &e.ResultPaths, &e.ContentPaths,
		&e.ResultSizeBytes, &e.ObserversOutput, &e.SchedulerError, &e.SchedulerLog, &e.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) listExperiments(ctx context.Context, query string, args ...any) ([]*WebExperiment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*WebExperiment
	for rows.Next() {
		var e WebExperiment
		if err := rows.Scan(
			&e.ID, &e.OwnerID, &e.Experiment, &e.CreatedAt, &e.RequestedExecutionAt, &e.StartedAt, &e.ExecutedAt,
			&e.FinishedAt, &e.ObserversRequested, &e.ObserversOffline, &e.ResultPaths, &e.ContentPaths,
			&e.ResultSizeBytes, &e.ObserversOutput, &e.SchedulerError, &e.SchedulerLog, &e.Version,
		); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

const experimentColumns = `id, owner_id, experiment, created_at, requested_execution_at, started_at, executed_at,
		       finished_at, observers_requested, observers_offline, result_paths, content_paths,
		       result_size_bytes, observers_output, scheduler_error, scheduler_log, version`

func (s *PostgresStore) ListExperimentsByOwner(ctx context.Context, ownerID string) ([]*WebExperiment, error) {
	return s.listExperiments(ctx, `SELECT `+experimentColumns+` FROM web_experiments WHERE owner_id=$1 ORDER BY created_at`, ownerID)
}

func (s *PostgresStore) ListAllExperiments(ctx context.Context) ([]*WebExperiment, error) {
	return s.listExperiments(ctx, `SELECT `+experimentColumns+` FROM web_experiments ORDER BY created_at`)
}

func (s *PostgresStore) ListStuckExperiments(ctx context.Context) ([]*WebExperiment, error) {
	return s.listExperiments(ctx, `SELECT `+experimentColumns+` FROM web_experiments WHERE started_at IS NOT NULL AND finished_at IS NULL`)
}

func (s *PostgresStore) ListRunningExperiment(ctx context.Context) (*WebExperiment, error) {
	return s.scanExperiment(ctx, `SELECT `+experimentColumns+` FROM web_experiments WHERE started_at IS NOT NULL AND finished_at IS NULL LIMIT 1`)
}

func (s *PostgresStore) ListPrunable(ctx context.Context, finishedBefore time.Time) ([]*WebExperiment, error) {
	return s.listExperiments(ctx, `SELECT `+experimentColumns+` FROM web_experiments WHERE finished_at IS NOT NULL AND finished_at < $1`, finishedBefore)
}

func (s *PostgresStore) DeleteExperiment(ctx context.Context, id string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM web_experiments WHERE id=$1 AND version=$2`, id, expectedVersion)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

func (s *PostgresStore) ScheduleExperiment(ctx context.Context, id string, requestedAt time.Time, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE web_experiments SET requested_execution_at=$3, version=version+1
		WHERE id=$1 AND version=$2
	`, id, expectedVersion, requestedAt)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

func (s *PostgresStore) NextCandidate(ctx context.Context, onlyElevated bool) (*WebExperiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM web_experiments e
		WHERE e.requested_execution_at IS NOT NULL AND e.started_at IS NULL`
	if onlyElevated {
		query += ` AND EXISTS (SELECT 1 FROM users u WHERE u.id = e.owner_id AND u.role IN ('elevated','admin'))`
	}
	query += ` ORDER BY e.requested_execution_at ASC LIMIT 1`
	return s.scanExperiment(ctx, query)
}

func (s *PostgresStore) ClaimExperiment(ctx context.Context, id string, startedAt time.Time, observersRequested []string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE web_experiments SET started_at=$3, observers_requested=$4, version=version+1
		WHERE id=$1 AND version=$2
	`, id, expectedVersion, startedAt, observersRequested)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

func (s *PostgresStore) RecordPrepareError(ctx context.Context, id string, errMsg string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE web_experiments SET scheduler_error=$3, version=version+1
		WHERE id=$1 AND version=$2
	`, id, expectedVersion, errMsg)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

func (s *PostgresStore) RecordExecuted(ctx context.Context, id string, executedAt time.Time, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE web_experiments SET executed_at=$3, version=version+1
		WHERE id=$1 AND version=$2
	`, id, expectedVersion, executedAt)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

func (s *PostgresStore) RecordCollectResult(ctx context.Context, id string, resultPaths, contentPaths map[string]string, resultSize int64, observersOutput map[string]ObserverOutput, observersOffline []string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE web_experiments
		SET result_paths=$3, content_paths=$4, result_size_bytes=$5, observers_output=$6,
		    observers_offline=$7, version=version+1
		WHERE id=$1 AND version=$2
	`, id, expectedVersion, resultPaths, contentPaths, resultSize, observersOutput, observersOffline)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

func (s *PostgresStore) FinalizeExperiment(ctx context.Context, id string, finishedAt time.Time, schedulerError, schedulerLog string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE web_experiments
		SET finished_at=$3,
		    scheduler_error = CASE WHEN $4 <> '' THEN $4 ELSE scheduler_error END,
		    scheduler_log=$5, version=version+1
		WHERE id=$1 AND version=$2
	`, id, expectedVersion, finishedAt, schedulerError, schedulerLog)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

func (s *PostgresStore) ResetStuckStart(ctx context.Context, id string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE web_experiments SET started_at=NULL, observers_requested=NULL, version=version+1
		WHERE id=$1 AND version=$2
	`, id, expectedVersion)
	if err != nil {
		return err
	}
	return rowsAffectedOrConflict(ctx, s, id, tag)
}

// --- TestbedStatus ---

func (s *PostgresStore) GetTestbedStatus(ctx context.Context) (*TestbedStatus, error) {
	var t TestbedStatus
	err := s.pool.QueryRow(ctx, `
		SELECT busy, observers_online, observers_offline, last_update, scheduler_activated_at,
		       redirect_activated_at, webapi_activated_at, dry_run, version
		FROM testbed_status WHERE id=1
	`).Scan(&t.Busy, &t.ObserversOnline, &t.ObserversOffline, &t.LastUpdate, &t.SchedulerActivatedAt,
		&t.RedirectActivatedAt, &t.WebapiActivatedAt, &t.DryRun, &t.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTestbedOccupancy(ctx context.Context, busy bool, online, offline []string, lastUpdate time.Time, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE testbed_status
		SET busy=$2, observers_online=$3, observers_offline=$4, last_update=$5, version=version+1
		WHERE id=1 AND version=$1
	`, expectedVersion, busy, online, offline, lastUpdate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) UpdateTestbedActivation(ctx context.Context, schedulerActivatedAt *time.Time, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE testbed_status SET scheduler_activated_at=$2, version=version+1
		WHERE id=1 AND version=$1
	`, expectedVersion, schedulerActivatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// --- ExperimentStats ---

func (s *PostgresStore) InsertExperimentStats(ctx context.Context, st *ExperimentStats) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO experiment_stats (experiment_id, owner_id, created_at, started_at, finished_at,
		                               pruned_at, duration, result_size_bytes, final_state, had_error, error_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, st.ExperimentID, st.OwnerID, st.CreatedAt, st.StartedAt, st.FinishedAt, st.PrunedAt,
		st.Duration, st.ResultSize, st.FinalState, st.HadError, st.ErrorSummary)
	return err
}

func (s *PostgresStore) ListExperimentStatsByOwner(ctx context.Context, ownerID string) ([]*ExperimentStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT experiment_id, owner_id, created_at, started_at, finished_at, pruned_at, duration,
		       result_size_bytes, final_state, had_error, error_summary
		FROM experiment_stats WHERE owner_id=$1 ORDER BY pruned_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ExperimentStats
	for rows.Next() {
		var st ExperimentStats
		if err := rows.Scan(&st.ExperimentID, &st.OwnerID, &st.CreatedAt, &st.StartedAt, &st.FinishedAt,
			&st.PrunedAt, &st.Duration, &st.ResultSize, &st.FinalState, &st.HadError, &st.ErrorSummary); err != nil {
			return nil, err
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func rowsAffectedOrConflict(ctx context.Context, s *PostgresStore, id string, tag interface{ RowsAffected() int64 }) error {
	if tag.RowsAffected() == 0 {
		if _, err := s.GetExperiment(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
