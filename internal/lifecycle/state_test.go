package lifecycle

import (
	"testing"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/store"
)

func TestDerive(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		e    *store.WebExperiment
		want State
	}{
		{"created", &store.WebExperiment{}, StateCreated},
		{"scheduled", &store.WebExperiment{RequestedExecutionAt: &now}, StateScheduled},
		{"running", &store.WebExperiment{RequestedExecutionAt: &now, StartedAt: &now}, StateRunning},
		{
			"finished",
			&store.WebExperiment{
				RequestedExecutionAt: &now, StartedAt: &now, FinishedAt: &now,
				ResultPaths: map[string]string{"sheep01": "results/sheep01.h5"},
			},
			StateFinished,
		},
		{
			"failed_no_results",
			&store.WebExperiment{RequestedExecutionAt: &now, StartedAt: &now, FinishedAt: &now, SchedulerError: "ssh: timeout"},
			StateFailed,
		},
		{
			"finished_despite_scheduler_error",
			&store.WebExperiment{
				RequestedExecutionAt: &now, StartedAt: &now, FinishedAt: &now,
				SchedulerError: "sheep02: offline",
				ResultPaths:    map[string]string{"sheep01": "results/sheep01.h5"},
			},
			StateFinished,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Derive(tc.e); got != tc.want {
				t.Errorf("Derive() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(StateRunning) {
		t.Error("running should not be terminal")
	}
	if !IsTerminal(StateFinished) || !IsTerminal(StateFailed) {
		t.Error("finished and failed should both be terminal")
	}
}

func TestCanScheduleOnlyFromCreated(t *testing.T) {
	now := time.Now()
	if !CanSchedule(&store.WebExperiment{}) {
		t.Error("a fresh experiment should be schedulable")
	}
	if CanSchedule(&store.WebExperiment{RequestedExecutionAt: &now}) {
		t.Error("an already-scheduled experiment should not be re-schedulable")
	}
}
