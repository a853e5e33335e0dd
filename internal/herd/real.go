package herd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/ssh"
)

// Config describes how RealHerd reaches the configured fleet.
type Config struct {
	// Observers is the full configured fleet, hostname or IP per
	// observer name.
	Observers map[string]string
	User      string
	KeyPath   string
	Port      int
	// DialTimeout bounds a single SSH handshake attempt; DialRetries
	// governs how many times a failed dial is retried with backoff
	// before the observer is reported unreachable.
	DialTimeout time.Duration
	DialRetries uint64
}

// RealHerd drives the fleet over SSH, one client connection per
// observer, opened lazily and reused across calls.
type RealHerd struct {
	cfg Config

	signer ssh.Signer

	mu       sync.Mutex
	clients  map[string]*ssh.Client
	breakers map[string]*dialBreaker
}

// breakerFor returns the dial circuit breaker for observer, creating one
// on first use. Three consecutive dial failures open the breaker for 30
// seconds, after which a single test dial decides whether it closes.
func (h *RealHerd) breakerFor(observer string) *dialBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.breakers[observer]
	if !ok {
		b = newDialBreaker(3, 30*time.Second)
		h.breakers[observer] = b
	}
	return b
}

// NewRealHerd reads the private key at cfg.KeyPath and returns a
// RealHerd with no open connections yet.
func NewRealHerd(cfg Config) (*RealHerd, error) {
	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("herd: reading ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("herd: parsing ssh key: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &RealHerd{
		cfg:      cfg,
		signer:   signer,
		clients:  make(map[string]*ssh.Client),
		breakers: make(map[string]*dialBreaker),
	}, nil
}

func (h *RealHerd) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            h.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(h.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // fleet hosts are provisioned, not user-facing
		Timeout:         h.cfg.DialTimeout,
	}
}

func (h *RealHerd) dial(observer string) (*ssh.Client, error) {
	h.mu.Lock()
	if c, ok := h.clients[observer]; ok {
		h.mu.Unlock()
		return c, nil
	}
	h.mu.Unlock()

	addr, ok := h.cfg.Observers[observer]
	if !ok {
		return nil, fmt.Errorf("herd: unknown observer %q", observer)
	}

	breaker := h.breakerFor(observer)
	if !breaker.allow() {
		return nil, fmt.Errorf("herd: %s: dial circuit open, not retrying yet", observer)
	}

	var client *ssh.Client
	op := func() error {
		c, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", addr, h.cfg.Port), h.clientConfig())
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), h.cfg.DialRetries)
	if err := backoff.Retry(op, bo); err != nil {
		breaker.recordFailure()
		return nil, fmt.Errorf("herd: dialing %s (%s): %w", observer, addr, err)
	}
	breaker.recordSuccess()

	h.mu.Lock()
	h.clients[observer] = client
	h.mu.Unlock()
	return client, nil
}

func (h *RealHerd) drop(observer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[observer]; ok {
		c.Close()
		delete(h.clients, observer)
	}
}

func (h *RealHerd) Open(ctx context.Context, observers []string) ([]string, error) {
	var unreachable []string
	for _, o := range observers {
		if _, err := h.dial(o); err != nil {
			unreachable = append(unreachable, o)
		}
	}
	return unreachable, nil
}

func (h *RealHerd) exec(observer, command string) (TaskResult, error) {
	client, err := h.dial(observer)
	if err != nil {
		return TaskResult{}, err
	}
	session, err := client.NewSession()
	if err != nil {
		h.drop(observer)
		return TaskResult{}, fmt.Errorf("herd: opening session on %s: %w", observer, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(command)
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		} else {
			return TaskResult{}, fmt.Errorf("herd: running %q on %s: %w", command, observer, err)
		}
	}
	return TaskResult{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (h *RealHerd) RunTask(ctx context.Context, observer, command string) (TaskResult, error) {
	return h.exec(observer, command)
}

func (h *RealHerd) ServiceIsActive(ctx context.Context, observer, service string) (bool, error) {
	res, err := h.exec(observer, "systemctl is-active --quiet "+service)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func (h *RealHerd) ServiceIsFailed(ctx context.Context, observer, service string) (bool, error) {
	res, err := h.exec(observer, "systemctl is-failed --quiet "+service)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func (h *RealHerd) ServiceGetLogs(ctx context.Context, observer, service string, since time.Time) (string, error) {
	cmd := fmt.Sprintf("journalctl -u %s --since=%q --no-pager", service, since.Format(time.RFC3339))
	res, err := h.exec(observer, cmd)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (h *RealHerd) ServiceEraseLog(ctx context.Context, observer, service string) error {
	_, err := h.exec(observer, "journalctl -u "+service+" --rotate && journalctl -u "+service+" --vacuum-time=1s")
	return err
}

func (h *RealHerd) FindConsensusTime(ctx context.Context, observers []string) (time.Time, error) {
	var times []time.Time
	for _, o := range observers {
		res, err := h.exec(o, "date -u +%s")
		if err != nil {
			continue
		}
		secs, perr := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
		if perr != nil {
			continue
		}
		times = append(times, time.Unix(secs, 0).UTC())
	}
	if len(times) == 0 {
		return time.Time{}, fmt.Errorf("herd: no observer among %v answered a clock query", observers)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times[len(times)/2], nil
}

func (h *RealHerd) KillSheepProcess(ctx context.Context, observer string) error {
	_, err := h.exec(observer, "pkill -TERM -f shepherd-sheep || true")
	return err
}

func (h *RealHerd) Reboot(ctx context.Context, observer string) error {
	client, err := h.dial(observer)
	if err != nil {
		return err
	}
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("herd: opening session on %s: %w", observer, err)
	}
	defer session.Close()
	// The connection drops as soon as the remote reboots; that is the
	// expected outcome, not a failure to surface.
	_ = session.Run("systemctl reboot")
	h.drop(observer)
	return nil
}

func (h *RealHerd) MinSpaceLeft(ctx context.Context, observers []string) (int64, error) {
	var min int64 = -1
	for _, o := range observers {
		res, err := h.exec(o, "df --output=avail -B1 /var/shepherd | tail -n1")
		if err != nil {
			continue
		}
		bytesFree, perr := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
		if perr != nil {
			continue
		}
		if min == -1 || bytesFree < min {
			min = bytesFree
		}
	}
	if min == -1 {
		return 0, fmt.Errorf("herd: no observer among %v reported free space", observers)
	}
	return min, nil
}

func (h *RealHerd) Resync(ctx context.Context, observer string) error {
	_, err := h.exec(observer, "shepherd-sheep resync")
	return err
}

func (h *RealHerd) Inventorize(ctx context.Context) (online, offline []string, err error) {
	names := make([]string, 0, len(h.cfg.Observers))
	for name := range h.cfg.Observers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, dialErr := h.dial(name); dialErr != nil {
			offline = append(offline, name)
			continue
		}
		online = append(online, name)
	}
	return online, offline, nil
}

var _ Herd = (*RealHerd)(nil)
