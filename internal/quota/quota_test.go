package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store, string) {
	t.Helper()
	st := store.NewMemoryStore()
	u := &store.User{ID: "u1", Email: "u1@example.org", Role: store.RoleUser}
	if err := st.InsertUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	e := New(st, Defaults{MaxDuration: time.Hour, MaxStorage: 1000})
	return e, st, u.ID
}

func TestMaySubmitWithinLimit(t *testing.T) {
	e, _, owner := newTestEngine(t)
	if err := e.MaySubmit(context.Background(), owner, 30*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMaySubmitExceedsLimit(t *testing.T) {
	e, _, owner := newTestEngine(t)
	err := e.MaySubmit(context.Background(), owner, 2*time.Hour)
	if !errors.Is(err, ErrDurationExceeded) {
		t.Fatalf("expected ErrDurationExceeded, got %v", err)
	}
}

func TestCustomQuotaOverridesDefaults(t *testing.T) {
	e, st, owner := newTestEngine(t)
	u, _ := st.GetUserByID(context.Background(), owner)
	u.CustomQuota = &store.CustomQuota{MaxDuration: 3 * time.Hour, MaxStorage: 5000}
	if err := st.SaveUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	if err := e.MaySubmit(context.Background(), owner, 2*time.Hour); err != nil {
		t.Fatalf("custom quota should allow this duration: %v", err)
	}
}

func TestMayScheduleChecksAccumulatedStorage(t *testing.T) {
	e, st, owner := newTestEngine(t)
	ctx := context.Background()

	finishedAt := time.Now()
	exp := &store.WebExperiment{
		ID:              "exp1",
		OwnerID:         owner,
		CreatedAt:       time.Now(),
		FinishedAt:      &finishedAt,
		ResultSizeBytes: 1500,
	}
	if err := st.InsertExperiment(ctx, exp); err != nil {
		t.Fatal(err)
	}

	if err := e.MaySchedule(ctx, owner, 10*time.Minute); !errors.Is(err, ErrStorageExceeded) {
		t.Fatalf("expected ErrStorageExceeded, got %v", err)
	}
}
