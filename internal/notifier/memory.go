package notifier

import (
	"context"
	"sync"

	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

// Sent is one recorded call to MemoryNotifier.
type Sent struct {
	ExperimentID string
	State        lifecycle.State
	HadErrors    bool
	QueueEmpty   bool
}

// MemoryNotifier records every call instead of sending mail; used by
// tests and by dry-run deployments that don't have an SMTP relay
// configured.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent []Sent
}

// NewMemoryNotifier returns an empty MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) NotifyTerminal(ctx context.Context, e *store.WebExperiment, state lifecycle.State, hadErrors, queueEmpty bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Sent{ExperimentID: e.ID, State: state, HadErrors: hadErrors, QueueEmpty: queueEmpty})
	return nil
}

// All returns every notification recorded so far.
func (n *MemoryNotifier) All() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

var _ Notifier = (*MemoryNotifier)(nil)
