package herd

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDryRunHerdPartialAvailability(t *testing.T) {
	h := NewDryRunHerd([]string{"sheep01", "sheep02", "sheep03"})
	h.SetOffline("sheep02", true)

	online, offline, err := h.Inventorize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 2 || len(offline) != 1 || offline[0] != "sheep02" {
		t.Fatalf("unexpected partition: online=%v offline=%v", online, offline)
	}

	unreachable, err := h.Open(context.Background(), []string{"sheep01", "sheep02"})
	if err != nil {
		t.Fatal(err)
	}
	if len(unreachable) != 1 || unreachable[0] != "sheep02" {
		t.Fatalf("expected only sheep02 unreachable, got %v", unreachable)
	}
}

func TestDryRunHerdRunTask(t *testing.T) {
	h := NewDryRunHerd([]string{"sheep01"})
	res, err := h.RunTask(context.Background(), "sheep01", "echo hi")
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 || !strings.Contains(res.Stdout, "echo hi") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDryRunHerdServiceFailure(t *testing.T) {
	h := NewDryRunHerd([]string{"sheep01"})
	h.SetServiceFailed("sheep01", "shepherd-sheep", true)

	failed, err := h.ServiceIsFailed(context.Background(), "sheep01", "shepherd-sheep")
	if err != nil {
		t.Fatal(err)
	}
	if !failed {
		t.Fatal("expected shepherd-sheep to report failed on sheep01")
	}
	if err := h.ServiceEraseLog(context.Background(), "sheep01", "shepherd-sheep"); err != nil {
		t.Fatal(err)
	}
}

func TestRunWithTimeoutSuccess(t *testing.T) {
	val, errStr := RunWithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if errStr != "" || val != 42 {
		t.Fatalf("unexpected result: val=%d errStr=%q", val, errStr)
	}
}

func TestRunWithTimeoutExpires(t *testing.T) {
	_, errStr := RunWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return 0, nil
	})
	if errStr == "" || !strings.Contains(errStr, "timed out") {
		t.Fatalf("expected a timeout message, got %q", errStr)
	}
}
