package notifier

import (
	"errors"
	"strings"
	"testing"

	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

func TestSMTPNotifierBodyFinishedClean(t *testing.T) {
	n := &SMTPNotifier{}
	e := &store.WebExperiment{ID: "exp1", Experiment: store.Experiment{Name: "run"}}
	body := n.body(e, lifecycle.StateFinished, false, nil, false)
	if !strings.Contains(body, "finished successfully") {
		t.Fatalf("expected a clean-finish body, got %q", body)
	}
	if strings.Contains(body, "all done") {
		t.Fatalf("expected no all-done addendum without EmailOnFinish or an empty queue, got %q", body)
	}
}

func TestSMTPNotifierBodyFinishedWithErrors(t *testing.T) {
	n := &SMTPNotifier{}
	e := &store.WebExperiment{ID: "exp1", Experiment: store.Experiment{Name: "run"}, SchedulerError: "sheep02: offline"}
	body := n.body(e, lifecycle.StateFinished, true, nil, false)
	if !strings.Contains(body, "finished, but with errors") || !strings.Contains(body, "sheep02: offline") {
		t.Fatalf("expected a finished-with-errors body naming the error, got %q", body)
	}
}

func TestSMTPNotifierBodyFailed(t *testing.T) {
	n := &SMTPNotifier{}
	e := &store.WebExperiment{ID: "exp1", Experiment: store.Experiment{Name: "run"}, SchedulerError: "ssh: timeout"}
	body := n.body(e, lifecycle.StateFailed, true, nil, false)
	if !strings.Contains(body, "failed") || !strings.Contains(body, "ssh: timeout") {
		t.Fatalf("expected a failure body naming the error, got %q", body)
	}
}

func TestSMTPNotifierBodyMissingOwner(t *testing.T) {
	n := &SMTPNotifier{}
	e := &store.WebExperiment{ID: "exp1", Experiment: store.Experiment{Name: "run"}}
	body := n.body(e, lifecycle.StateFinished, true, errors.New("not found"), false)
	if !strings.Contains(body, "could not be resolved") {
		t.Fatalf("expected a missing-owner note, got %q", body)
	}
}

func TestSMTPNotifierBodyAllDoneOnEmailOnFinish(t *testing.T) {
	n := &SMTPNotifier{}
	e := &store.WebExperiment{ID: "exp1", Experiment: store.Experiment{Name: "run", EmailOnFinish: true}}
	body := n.body(e, lifecycle.StateFinished, false, nil, false)
	if !strings.Contains(body, "all done") {
		t.Fatalf("expected an all-done addendum when EmailOnFinish is set, got %q", body)
	}
}

func TestSMTPNotifierBodyAllDoneOnEmptyQueue(t *testing.T) {
	n := &SMTPNotifier{}
	e := &store.WebExperiment{ID: "exp1", Experiment: store.Experiment{Name: "run"}}
	body := n.body(e, lifecycle.StateFinished, false, nil, true)
	if !strings.Contains(body, "all done") {
		t.Fatalf("expected an all-done addendum when the queue empties, got %q", body)
	}
}
