package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/herd"
	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/notifier"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

func init() {
	servicePollInterval = time.Millisecond
	collectSettleDelay = time.Millisecond
	rebootSettleDelay = time.Millisecond
}

func newFixture(t *testing.T) (*store.MemoryStore, *herd.DryRunHerd, *notifier.MemoryNotifier, *Scheduler) {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()

	owner := &store.User{ID: "owner1", Email: "owner1@example.org", Role: store.RoleUser}
	if err := st.InsertUser(ctx, owner); err != nil {
		t.Fatal(err)
	}

	h := herd.NewDryRunHerd([]string{"sheep01", "sheep02"})
	n := notifier.NewMemoryNotifier()
	sched := New(st, h, n, Config{WaitDelay: 10 * time.Millisecond})
	return st, h, n, sched
}

func submitExperiment(t *testing.T, st *store.MemoryStore, id string, duration time.Duration) *store.WebExperiment {
	t.Helper()
	e := &store.WebExperiment{
		ID:      id,
		OwnerID: "owner1",
		Experiment: store.Experiment{
			Name:     "test-run",
			Duration: duration,
			Targets:  []store.TargetConfig{{ObserverID: "sheep01"}, {ObserverID: "sheep02"}},
		},
		CreatedAt: time.Now(),
	}
	ctx := context.Background()
	if err := st.InsertExperiment(ctx, e); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := st.ScheduleExperiment(ctx, id, now, e.Version); err != nil {
		t.Fatal(err)
	}
	e.Version++
	return e
}

func TestRunWebExperimentSuccess(t *testing.T) {
	st, h, n, sched := newFixture(t)
	e := submitExperiment(t, st, "exp1", 50*time.Millisecond)

	// Both observers' services report inactive so the prepare and
	// execute phases' poll loops exit quickly.
	h.SetServiceActive("sheep01", "shepherd-sheep", false)
	h.SetServiceActive("sheep02", "shepherd-sheep", false)

	candidate, err := st.GetExperiment(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	sched.runWebExperiment(context.Background(), candidate)

	got, err := st.GetExperiment(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if lifecycle.Derive(got) != lifecycle.StateFinished {
		t.Fatalf("expected finished, got %s (scheduler_error=%q)", lifecycle.Derive(got), got.SchedulerError)
	}
	if len(n.All()) != 1 || n.All()[0].State != lifecycle.StateFinished {
		t.Fatalf("expected one finished notification, got %v", n.All())
	}
}

func TestRunWebExperimentAllObserversOffline(t *testing.T) {
	st, h, _, sched := newFixture(t)
	e := submitExperiment(t, st, "exp2", 50*time.Millisecond)
	h.SetOffline("sheep01", true)
	h.SetOffline("sheep02", true)

	candidate, _ := st.GetExperiment(context.Background(), e.ID)
	sched.runWebExperiment(context.Background(), candidate)

	got, err := st.GetExperiment(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if lifecycle.Derive(got) != lifecycle.StateFailed {
		t.Fatalf("expected failed, got %s", lifecycle.Derive(got))
	}
	if got.SchedulerError == "" {
		t.Fatal("expected a scheduler_error to be recorded")
	}
}

func TestRunWebExperimentPartialFleet(t *testing.T) {
	st, h, _, sched := newFixture(t)
	e := submitExperiment(t, st, "exp3", 50*time.Millisecond)
	h.SetOffline("sheep02", true)
	h.SetServiceActive("sheep01", "shepherd-sheep", false)

	candidate, _ := st.GetExperiment(context.Background(), e.ID)
	sched.runWebExperiment(context.Background(), candidate)

	got, err := st.GetExperiment(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if lifecycle.Derive(got) != lifecycle.StateFinished {
		t.Fatalf("expected finished despite one offline observer, got %s (err=%q)", lifecycle.Derive(got), got.SchedulerError)
	}
	if _, ok := got.ObserversOutput["sheep01"]; !ok {
		t.Fatal("expected output recorded for the reachable observer")
	}
}

func TestResetStuckOnStartup(t *testing.T) {
	st, _, _, sched := newFixture(t)
	e := submitExperiment(t, st, "exp4", time.Minute)
	ctx := context.Background()

	if err := st.ClaimExperiment(ctx, e.ID, time.Now(), []string{"sheep01", "sheep02"}, e.Version); err != nil {
		t.Fatal(err)
	}

	if err := sched.resetStuck(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetExperiment(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StartedAt != nil {
		t.Fatal("expected StartedAt to be cleared by resetStuck")
	}
	if lifecycle.Derive(got) != lifecycle.StateScheduled {
		t.Fatalf("expected the experiment to be reclaimable, got %s", lifecycle.Derive(got))
	}
}
