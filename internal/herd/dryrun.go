package herd

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DryRunHerd simulates a fleet with no real hardware: every configured
// observer answers instantly and successfully unless explicitly marked
// offline. It exists so a deployment (or a test) can exercise the full
// scheduler protocol end to end without SSH access to anything, mirroring
// how the teacher's Store interface has a MemoryStore standing in for
// Postgres/Redis.
type DryRunHerd struct {
	mu       sync.Mutex
	fleet    []string
	offline  map[string]bool
	services map[string]bool // "observer/service" -> active
	failed   map[string]bool // "observer/service" -> failed
	clock    func() time.Time
}

// NewDryRunHerd returns a DryRunHerd configured with the given fleet,
// all initially online.
func NewDryRunHerd(fleet []string) *DryRunHerd {
	f := append([]string(nil), fleet...)
	sort.Strings(f)
	return &DryRunHerd{
		fleet:    f,
		offline:  make(map[string]bool),
		services: make(map[string]bool),
		failed:   make(map[string]bool),
		clock:    time.Now,
	}
}

// SetOffline marks observer as unreachable for every subsequent call,
// letting tests exercise partial-fleet-availability behavior.
func (h *DryRunHerd) SetOffline(observer string, offline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offline[observer] = offline
}

func (h *DryRunHerd) isOffline(observer string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offline[observer]
}

func (h *DryRunHerd) Open(ctx context.Context, observers []string) ([]string, error) {
	var unreachable []string
	for _, o := range observers {
		if h.isOffline(o) {
			unreachable = append(unreachable, o)
		}
	}
	return unreachable, nil
}

func (h *DryRunHerd) RunTask(ctx context.Context, observer, command string) (TaskResult, error) {
	if h.isOffline(observer) {
		return TaskResult{}, fmt.Errorf("herd: %s is offline", observer)
	}
	return TaskResult{ExitCode: 0, Stdout: fmt.Sprintf("dry-run: ran %q on %s", command, observer)}, nil
}

func (h *DryRunHerd) ServiceIsActive(ctx context.Context, observer, service string) (bool, error) {
	if h.isOffline(observer) {
		return false, fmt.Errorf("herd: %s is offline", observer)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.services[observer+"/"+service], nil
}

// SetServiceActive lets tests drive the Prepare and Execute phases'
// polling loops through a "still running" -> "finished" transition. A
// service never set here reports inactive, i.e. already finished.
func (h *DryRunHerd) SetServiceActive(observer, service string, active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[observer+"/"+service] = active
}

// SetServiceFailed lets tests drive the Prepare phase's remote-failure
// detection path.
func (h *DryRunHerd) SetServiceFailed(observer, service string, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed[observer+"/"+service] = failed
}

func (h *DryRunHerd) ServiceIsFailed(ctx context.Context, observer, service string) (bool, error) {
	if h.isOffline(observer) {
		return false, fmt.Errorf("herd: %s is offline", observer)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed[observer+"/"+service], nil
}

func (h *DryRunHerd) ServiceGetLogs(ctx context.Context, observer, service string, since time.Time) (string, error) {
	if h.isOffline(observer) {
		return "", fmt.Errorf("herd: %s is offline", observer)
	}
	return fmt.Sprintf("dry-run log for %s on %s since %s", service, observer, since), nil
}

func (h *DryRunHerd) ServiceEraseLog(ctx context.Context, observer, service string) error {
	if h.isOffline(observer) {
		return fmt.Errorf("herd: %s is offline", observer)
	}
	return nil
}

func (h *DryRunHerd) FindConsensusTime(ctx context.Context, observers []string) (time.Time, error) {
	for _, o := range observers {
		if !h.isOffline(o) {
			return h.clock(), nil
		}
	}
	return time.Time{}, fmt.Errorf("herd: no observer among %v answered a clock query", observers)
}

func (h *DryRunHerd) KillSheepProcess(ctx context.Context, observer string) error {
	if h.isOffline(observer) {
		return fmt.Errorf("herd: %s is offline", observer)
	}
	return nil
}

func (h *DryRunHerd) Reboot(ctx context.Context, observer string) error {
	if h.isOffline(observer) {
		return fmt.Errorf("herd: %s is offline", observer)
	}
	return nil
}

func (h *DryRunHerd) MinSpaceLeft(ctx context.Context, observers []string) (int64, error) {
	for _, o := range observers {
		if h.isOffline(o) {
			continue
		}
		return 1 << 34, nil // pretend 16GiB free
	}
	return 0, fmt.Errorf("herd: no observer among %v reported free space", observers)
}

func (h *DryRunHerd) Resync(ctx context.Context, observer string) error {
	if h.isOffline(observer) {
		return fmt.Errorf("herd: %s is offline", observer)
	}
	return nil
}

func (h *DryRunHerd) Inventorize(ctx context.Context) (online, offline []string, err error) {
	for _, o := range h.fleet {
		if h.isOffline(o) {
			offline = append(offline, o)
		} else {
			online = append(online, o)
		}
	}
	return online, offline, nil
}

var _ Herd = (*DryRunHerd)(nil)
