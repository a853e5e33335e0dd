package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, used by tests and by dry-run
// deployments that don't need durability. Every record is a pointer
// behind a mutex; readers get a shallow copy so callers can't mutate
// internal state without going through a transition method.
type MemoryStore struct {
	mu sync.RWMutex

	usersByID    map[string]*User
	usersByEmail map[string]string // email -> id

	experiments map[string]*WebExperiment
	statsByID   map[string][]*ExperimentStats // ownerID -> stats

	status *TestbedStatus
}

// NewMemoryStore returns an empty MemoryStore with a zero-value
// TestbedStatus singleton already present.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByID:    make(map[string]*User),
		usersByEmail: make(map[string]string),
		experiments:  make(map[string]*WebExperiment),
		statsByID:    make(map[string][]*ExperimentStats),
		status:       &TestbedStatus{LastUpdate: time.Time{}},
	}
}

func copyUser(u *User) *User {
	cp := *u
	return &cp
}

func copyExperiment(e *WebExperiment) *WebExperiment {
	cp := *e
	if e.ObserversRequested != nil {
		cp.ObserversRequested = append([]string(nil), e.ObserversRequested...)
	}
	if e.ObserversOffline != nil {
		cp.ObserversOffline = append([]string(nil), e.ObserversOffline...)
	}
	if e.ResultPaths != nil {
		cp.ResultPaths = make(map[string]string, len(e.ResultPaths))
		for k, v := range e.ResultPaths {
			cp.ResultPaths[k] = v
		}
	}
	if e.ContentPaths != nil {
		cp.ContentPaths = make(map[string]string, len(e.ContentPaths))
		for k, v := range e.ContentPaths {
			cp.ContentPaths[k] = v
		}
	}
	if e.ObserversOutput != nil {
		cp.ObserversOutput = make(map[string]ObserverOutput, len(e.ObserversOutput))
		for k, v := range e.ObserversOutput {
			cp.ObserversOutput[k] = v
		}
	}
	return &cp
}

// --- Users ---

func (m *MemoryStore) InsertUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersByID[u.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.usersByEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	m.usersByID[u.ID] = copyUser(u)
	m.usersByEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) SaveUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersByID[u.ID]; !ok {
		return ErrNotFound
	}
	m.usersByID[u.ID] = copyUser(u)
	m.usersByEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(m.usersByID[id]), nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.usersByID))
	for _, u := range m.usersByID {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteUser removes the user and cascades to every experiment they own,
// per the data model's cascading-delete rule.
func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usersByID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.usersByEmail, u.Email)
	delete(m.usersByID, id)
	for eid, e := range m.experiments {
		if e.OwnerID == id {
			delete(m.experiments, eid)
		}
	}
	return nil
}

// --- Experiments ---

func (m *MemoryStore) InsertExperiment(ctx context.Context, e *WebExperiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[e.ID]; ok {
		return ErrAlreadyExists
	}
	e.Version = 1
	m.experiments[e.ID] = copyExperiment(e)
	return nil
}

func (m *MemoryStore) GetExperiment(ctx context.Context, id string) (*WebExperiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyExperiment(e), nil
}

func (m *MemoryStore) ListExperimentsByOwner(ctx context.Context, ownerID string) ([]*WebExperiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WebExperiment
	for _, e := range m.experiments {
		if e.OwnerID == ownerID {
			out = append(out, copyExperiment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListAllExperiments(ctx context.Context) ([]*WebExperiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*WebExperiment, 0, len(m.experiments))
	for _, e := range m.experiments {
		out = append(out, copyExperiment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListStuckExperiments(ctx context.Context) ([]*WebExperiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WebExperiment
	for _, e := range m.experiments {
		if e.StartedAt != nil && e.FinishedAt == nil {
			out = append(out, copyExperiment(e))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListRunningExperiment(ctx context.Context) (*WebExperiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.experiments {
		if e.StartedAt != nil && e.FinishedAt == nil {
			return copyExperiment(e), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListPrunable(ctx context.Context, finishedBefore time.Time) ([]*WebExperiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WebExperiment
	for _, e := range m.experiments {
		if e.FinishedAt != nil && e.FinishedAt.Before(finishedBefore) {
			out = append(out, copyExperiment(e))
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteExperiment(ctx context.Context, id string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	delete(m.experiments, id)
	return nil
}

func (m *MemoryStore) ScheduleExperiment(ctx context.Context, id string, requestedAt time.Time, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	t := requestedAt
	e.RequestedExecutionAt = &t
	e.Version++
	return nil
}

// NextCandidate returns the oldest-requested, not-yet-claimed experiment.
// When onlyElevated is true (queue-draining mode) candidates owned by
// non-elevated users are skipped.
func (m *MemoryStore) NextCandidate(ctx context.Context, onlyElevated bool) (*WebExperiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *WebExperiment
	for _, e := range m.experiments {
		if e.RequestedExecutionAt == nil || e.StartedAt != nil {
			continue
		}
		if onlyElevated {
			owner, ok := m.usersByID[e.OwnerID]
			if !ok || owner.Role != RoleElevated && owner.Role != RoleAdmin {
				continue
			}
		}
		if best == nil || e.RequestedExecutionAt.Before(*best.RequestedExecutionAt) {
			best = e
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return copyExperiment(best), nil
}

func (m *MemoryStore) ClaimExperiment(ctx context.Context, id string, startedAt time.Time, observersRequested []string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	t := startedAt
	e.StartedAt = &t
	e.ObserversRequested = append([]string(nil), observersRequested...)
	e.Version++
	return nil
}

func (m *MemoryStore) RecordPrepareError(ctx context.Context, id string, errMsg string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	e.SchedulerError = errMsg
	e.Version++
	return nil
}

func (m *MemoryStore) RecordExecuted(ctx context.Context, id string, executedAt time.Time, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	t := executedAt
	e.ExecutedAt = &t
	e.Version++
	return nil
}

func (m *MemoryStore) RecordCollectResult(ctx context.Context, id string, resultPaths, contentPaths map[string]string, resultSize int64, observersOutput map[string]ObserverOutput, observersOffline []string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	e.ResultPaths = resultPaths
	e.ContentPaths = contentPaths
	e.ResultSizeBytes = resultSize
	e.ObserversOutput = observersOutput
	e.ObserversOffline = append([]string(nil), observersOffline...)
	e.Version++
	return nil
}

func (m *MemoryStore) FinalizeExperiment(ctx context.Context, id string, finishedAt time.Time, schedulerError, schedulerLog string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	t := finishedAt
	e.FinishedAt = &t
	if schedulerError != "" {
		e.SchedulerError = schedulerError
	}
	e.SchedulerLog = schedulerLog
	e.Version++
	return nil
}

func (m *MemoryStore) ResetStuckStart(ctx context.Context, id string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != expectedVersion {
		return ErrVersionConflict
	}
	e.StartedAt = nil
	e.ObserversRequested = nil
	e.Version++
	return nil
}

// --- TestbedStatus ---

func (m *MemoryStore) GetTestbedStatus(ctx context.Context) (*TestbedStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.status
	return &cp, nil
}

func (m *MemoryStore) UpdateTestbedOccupancy(ctx context.Context, busy bool, online, offline []string, lastUpdate time.Time, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.status.Busy = busy
	m.status.ObserversOnline = online
	m.status.ObserversOffline = offline
	m.status.LastUpdate = lastUpdate
	m.status.Version++
	return nil
}

func (m *MemoryStore) UpdateTestbedActivation(ctx context.Context, schedulerActivatedAt *time.Time, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.status.SchedulerActivatedAt = schedulerActivatedAt
	m.status.Version++
	return nil
}

// --- ExperimentStats ---

func (m *MemoryStore) InsertExperimentStats(ctx context.Context, s *ExperimentStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.statsByID[s.OwnerID] = append(m.statsByID[s.OwnerID], &cp)
	return nil
}

func (m *MemoryStore) ListExperimentStatsByOwner(ctx context.Context, ownerID string) ([]*ExperimentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.statsByID[ownerID]
	out := make([]*ExperimentStats, len(src))
	for i, s := range src {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
