package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// at-most-one-running-experiment is a Non-goal-scoped invariant: the spec
// explicitly excludes multi-scheduler HA/leader election. StartupLease is
// therefore deliberately NOT the teacher's LeaderElector (no fencing
// epochs, no renew-loop-with-step-down, no onElected/onLost callbacks) —
// it is a single acquire-at-boot guard that stops a second scheduler
// process from starting against the same Redis instance, adapted down
// from the teacher's AcquireLock/RenewLock Lua scripts in
// control_plane/store/redis.go.

var renewLua = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// StartupLease is a single named exclusive lease held for the lifetime
// of one scheduler process.
type StartupLease struct {
	client  *redis.Client
	key     string
	ownerID string
	ttl     time.Duration
}

// NewStartupLease returns a lease bound to client, keyed by name.
func NewStartupLease(client *redis.Client, name string, ttl time.Duration) *StartupLease {
	return &StartupLease{
		client:  client,
		key:     "shepherd:scheduler:lease:" + name,
		ownerID: uuid.NewString(),
		ttl:     ttl,
	}
}

// Acquire takes the lease or returns an error if another process already
// holds it. Call once at startup before entering the run loop.
func (l *StartupLease) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.ownerID, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("scheduler: acquiring startup lease: %w", err)
	}
	if !ok {
		return fmt.Errorf("scheduler: lease %q is already held by another process", l.key)
	}
	return nil
}

// Renew extends the lease if this process still owns it. Call it
// periodically (well inside ttl) from the run loop; a failure here means
// another scheduler has taken over and this process must stop claiming
// new work immediately.
func (l *StartupLease) Renew(ctx context.Context) error {
	res, err := renewLua.Run(ctx, l.client, []string{l.key}, l.ownerID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("scheduler: renewing startup lease: %w", err)
	}
	if res == 0 {
		return fmt.Errorf("scheduler: lost ownership of lease %q", l.key)
	}
	return nil
}

// Release gives up the lease. It deliberately uses its own short-lived
// context rather than the caller's, since this always runs during
// shutdown where the caller's context may already be canceled. Best
// effort: a process that dies without calling this relies on the TTL to
// free the key.
func (l *StartupLease) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := l.client.Get(ctx, l.key).Result()
	if err == nil && val == l.ownerID {
		l.client.Del(ctx, l.key)
	}
}
