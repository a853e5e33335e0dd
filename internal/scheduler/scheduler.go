// Package scheduler implements C5: the single logical writer that drives
// one experiment at a time through the five-phase protocol (Claim,
// Prepare, Execute, Collect, Finalize) against a partially-available
// fleet, polling for the next candidate every WaitDelay when idle.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/nes-lab/shepherd-webapi/internal/herd"
	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/notifier"
	"github.com/nes-lab/shepherd-webapi/internal/observability"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

// sheepService is the systemd-equivalent unit name the Herd drives on
// every observer, for both the programming (Prepare) and emulation
// (Execute) tasks.
const sheepService = "shepherd-sheep"

// Scheduler is the C5 component. One instance drives the whole fleet;
// see internal/scheduler.StartupLease for the boot-time guard against a
// second instance starting against the same backing store.
type Scheduler struct {
	store    store.Store
	herd     herd.Herd
	notifier notifier.Notifier
	cfg      Config
}

// New wires a Scheduler. cfg.DryRun is not consulted here — selecting
// DryRunHerd vs RealHerd happens at construction time in the caller
// (cmd/scheduler), matching the spec's requirement that dry-run be a
// compile-time-selectable concrete implementation, not a runtime branch
// inside the scheduler.
func New(st store.Store, h herd.Herd, n notifier.Notifier, cfg Config) *Scheduler {
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &Scheduler{store: st, herd: h, notifier: n, cfg: cfg}
}

// Run blocks until ctx is canceled or a run reports had_error, in which
// case it issues a herd reboot and returns so an external supervisor
// restarts the process. It marks TestbedStatus activated for the
// duration of the run, performs an initial herd cleanup, resets any
// experiment left mid-run by a previous process, then loops: poll for a
// candidate, run it to completion, poll again.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.activate(ctx); err != nil {
		return fmt.Errorf("scheduler: marking testbed activated: %w", err)
	}
	defer s.deactivate()

	s.initialCleanup(ctx)

	if err := s.resetStuck(ctx); err != nil {
		return fmt.Errorf("scheduler: resetting stuck experiments on startup: %w", err)
	}

	ticker := time.NewTicker(s.cfg.WaitDelay)
	defer ticker.Stop()

	for {
		candidate, err := s.store.NextCandidate(ctx, s.cfg.OnlyElevated)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// nothing waiting, fall through to the poll wait
		case err != nil:
			log.Printf("scheduler: next candidate lookup failed: %v", err)
		default:
			hadError, touched := s.runWebExperiment(ctx, candidate)
			if hadError {
				var transcript []string
				s.herdReboot(ctx, &transcript, touched)
				return fmt.Errorf("scheduler: experiment %s completed with errors, exiting for supervisor restart", candidate.ID)
			}
			continue // re-poll immediately; there may be more queued work
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// activate marks TestbedStatus.SchedulerActivatedAt, the field the spec
// calls `activated`, on scheduler startup.
func (s *Scheduler) activate(ctx context.Context) error {
	status, err := s.store.GetTestbedStatus(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.store.UpdateTestbedActivation(ctx, &now, status.Version)
}

// deactivate clears TestbedStatus.SchedulerActivatedAt on shutdown. It
// uses its own short-lived context rather than the caller's (which may
// already be canceled), mirroring StartupLease.Release's pattern of
// never letting shutdown cleanup depend on an expiring context.
func (s *Scheduler) deactivate() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := s.store.GetTestbedStatus(ctx)
	if err != nil {
		log.Printf("scheduler: deactivating: loading testbed status: %v", err)
		return
	}
	if err := s.store.UpdateTestbedActivation(ctx, nil, status.Version); err != nil {
		log.Printf("scheduler: deactivating: %v", err)
	}
}

// initialCleanup runs the §4.5 cleanup sequence against every observer
// the Herd currently reports online, before the main loop starts.
func (s *Scheduler) initialCleanup(ctx context.Context) {
	online, _, err := s.herd.Inventorize(ctx)
	if err != nil {
		log.Printf("scheduler: initial inventorize failed: %v", err)
		return
	}
	for _, o := range online {
		s.cleanupObserver(ctx, o)
	}
}

// cleanupObserver kills any lingering sheep process, waits until the
// service is no longer active, and erases its per-node log. Used both
// at startup and at the end of every run.
func (s *Scheduler) cleanupObserver(ctx context.Context, observer string) {
	herd.RunWithTimeout(ctx, CleanupTimeout, func(ctx context.Context) (struct{}, error) {
		if err := s.herd.KillSheepProcess(ctx, observer); err != nil {
			return struct{}{}, err
		}
		deadline := time.Now().Add(CleanupTimeout)
		for {
			active, err := s.herd.ServiceIsActive(ctx, observer, sheepService)
			if err != nil || !active {
				break
			}
			if time.Now().After(deadline) {
				break
			}
			time.Sleep(servicePollInterval)
		}
		return struct{}{}, s.herd.ServiceEraseLog(ctx, observer, sheepService)
	})
}

// resetStuck clears StartedAt on every experiment a previous process
// claimed but never finished, so NextCandidate can hand it out again.
// This is the only place StartedAt is cleared outside of the owner
// explicitly canceling via the (out-of-scope) API.
func (s *Scheduler) resetStuck(ctx context.Context) error {
	stuck, err := s.store.ListStuckExperiments(ctx)
	if err != nil {
		return err
	}
	for _, e := range stuck {
		if err := s.store.ResetStuckStart(ctx, e.ID, e.Version); err != nil && !errors.Is(err, store.ErrVersionConflict) {
			log.Printf("scheduler: resetting stuck experiment %s: %v", e.ID, err)
			continue
		}
		s.logDecision(nil, Decision{Phase: "startup", ExperimentID: e.ID, Outcome: "reset", Reason: "claimed but never finished by a previous process"})
	}
	return nil
}

// logDecision appends a structured event both to the process log and,
// if buf is non-nil, to the per-run transcript that becomes
// WebExperiment.SchedulerLog.
func (s *Scheduler) logDecision(buf *[]string, d Decision) {
	data, err := json.Marshal(d)
	if err != nil {
		log.Printf("scheduler: marshaling decision: %v", err)
		return
	}
	log.Println(string(data))
	if buf != nil {
		*buf = append(*buf, string(data))
	}
}

// runWebExperiment drives one experiment through all five phases. It
// never panics or propagates an error: every failure is recorded on the
// experiment itself via FinalizeExperiment and logged. It returns
// had_error per spec §4.4 step 5 and the full set of observers this run
// touched, for the caller to reboot if had_error is true.
func (s *Scheduler) runWebExperiment(ctx context.Context, candidate *store.WebExperiment) (hadError bool, touched []string) {
	var transcript []string
	id := candidate.ID
	loopStart := time.Now()

	observerIDs := make([]string, 0, len(candidate.Experiment.Targets))
	for _, t := range candidate.Experiment.Targets {
		observerIDs = append(observerIDs, t.ObserverID)
	}

	// --- Phase 1: Claim ---
	if err := s.store.ClaimExperiment(ctx, id, loopStart, observerIDs, candidate.Version); err != nil {
		s.logDecision(&transcript, Decision{Phase: "claim", ExperimentID: id, OwnerID: candidate.OwnerID, Outcome: "skipped", Reason: err.Error()})
		return false, observerIDs
	}
	candidate.Version++
	candidate.StartedAt = &loopStart
	s.logDecision(&transcript, Decision{Phase: "claim", ExperimentID: id, OwnerID: candidate.OwnerID, Outcome: "claimed"})

	// --- Phase 2: Prepare ---
	online, offline, prepErr := s.prepare(ctx, &transcript, candidate, observerIDs)

	// --- Phase 3: Execute --- (skipped if Prepare left nothing reachable)
	var execErr string
	var tsHerd time.Time
	if prepErr == "" {
		tsHerd, online, offline, execErr = s.execute(ctx, &transcript, candidate, online, offline)
	}

	// --- Phase 4: Collect --- (always runs: logs/cleanup still matter on a failed run)
	outputs, offline, collectErr := s.collect(ctx, &transcript, candidate, online, offline, tsHerd, loopStart)
	resultPaths, contentPaths, resultSize := s.buildResultPaths(candidate, outputs)

	if err := s.store.RecordCollectResult(ctx, id, resultPaths, contentPaths, resultSize, outputs, offline, candidate.Version); err != nil {
		s.logDecision(&transcript, Decision{Phase: "collect", ExperimentID: id, Outcome: "store_error", Reason: err.Error()})
	} else {
		candidate.Version++
	}

	// --- Phase 5: Finalize ---
	schedulerError := firstNonEmpty(prepErr, execErr, collectErr)

	maxExitCode := 0
	missingData := false
	for _, out := range outputs {
		if out.ExitCode > maxExitCode {
			maxExitCode = out.ExitCode
		}
		if !out.HasData {
			missingData = true
		}
	}
	missingObservers := len(offline) > 0
	hadError = schedulerError != "" || maxExitCode > 0 || missingData || missingObservers

	s.finalize(ctx, &transcript, candidate, schedulerError, hadError, observerIDs)
	return hadError, observerIDs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// prepare is phase 2: intersect the requested observer set with the
// Herd's online set, push a preparation task descriptor (programming
// only, no emulation) to each, and block-poll each one's service status
// with an outer timeout of PrepareTimeout. An observer that fails to
// resync, fails to start the task, or whose service reports failure is
// dropped to offline rather than failing the whole phase. The phase
// fails if nothing remains reachable, or if the whole phase outlasts
// PrepareTimeout (observers are programmed one after another, so one
// observer that never finishes exhausts it), in which case every
// requested observer is reported offline. On failure the caller skips
// straight to Collect.
func (s *Scheduler) prepare(ctx context.Context, transcript *[]string, e *store.WebExperiment, observerIDs []string) (online, offline []string, errStr string) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if errStr != "" {
			outcome = "failed"
		}
		observability.PhaseDuration.WithLabelValues("prepare", outcome).Observe(time.Since(start).Seconds())
	}()

	type prepResult struct {
		online, offline []string
	}
	res, errStr := herd.RunWithTimeout(ctx, PrepareTimeout, func(ctx context.Context) (prepResult, error) {
		unreachable, err := s.herd.Open(ctx, observerIDs)
		if err != nil {
			return prepResult{}, err
		}
		offlineSet := make(map[string]bool, len(unreachable))
		for _, o := range unreachable {
			offlineSet[o] = true
		}

		var candidates []string
		for _, o := range observerIDs {
			if offlineSet[o] {
				continue
			}
			if err := s.herd.Resync(ctx, o); err != nil {
				offlineSet[o] = true
				continue
			}
			candidates = append(candidates, o)
		}

		cmd := func(o string) string { return fmt.Sprintf("shepherd-sheep program --experiment=%s --observer=%s", e.ID, o) }
		var onlineList []string
		for _, o := range candidates {
			if _, err := s.herd.RunTask(ctx, o, cmd(o)); err != nil {
				offlineSet[o] = true
				continue
			}
			if !s.pollServiceDone(ctx, o, PrepareTimeout) {
				offlineSet[o] = true
				continue
			}
			onlineList = append(onlineList, o)
		}

		offlineList := make([]string, 0, len(offlineSet))
		for o := range offlineSet {
			offlineList = append(offlineList, o)
		}
		return prepResult{online: onlineList, offline: offlineList}, nil
	})

	if errStr != "" {
		if err := s.store.RecordPrepareError(ctx, e.ID, errStr, e.Version); err == nil {
			e.Version++
		}
		s.logDecision(transcript, Decision{Phase: "prepare", ExperimentID: e.ID, Outcome: "failed", Reason: errStr})
		return nil, observerIDs, errStr
	}
	if len(res.online) == 0 {
		msg := "no requested observer finished programming"
		if err := s.store.RecordPrepareError(ctx, e.ID, msg, e.Version); err == nil {
			e.Version++
		}
		s.logDecision(transcript, Decision{Phase: "prepare", ExperimentID: e.ID, Outcome: "failed", Reason: msg})
		return nil, res.offline, msg
	}

	s.logDecision(transcript, Decision{
		Phase: "prepare", ExperimentID: e.ID, Outcome: "ready",
		Reason: fmt.Sprintf("online=%v offline=%v", res.online, res.offline),
	})
	return res.online, res.offline, ""
}

// pollServiceDone blocks until observer's sheep service is no longer
// active, reports failed, or deadline elapses, returning whether it
// finished without reporting failure.
func (s *Scheduler) pollServiceDone(ctx context.Context, observer string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if failed, err := s.herd.ServiceIsFailed(ctx, observer, sheepService); err == nil && failed {
			return false
		}
		active, err := s.herd.ServiceIsActive(ctx, observer, sheepService)
		if err != nil {
			return false
		}
		if !active {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(servicePollInterval):
		}
	}
}

// servicePollInterval is a var, not a const, so tests can shorten it.
var servicePollInterval = 2 * time.Second

// execute is phase 3: record the observer clock as ts_herd (the log
// fetch lower bound), push the real emulation task with a start time 60
// seconds out (the PTP synchronization budget), and block-poll each
// online observer's service until it finishes or the experiment's
// duration plus CompletionSlack elapses.
func (s *Scheduler) execute(ctx context.Context, transcript *[]string, e *store.WebExperiment, online, offline []string) (tsHerd time.Time, stillOnline, stillOffline []string, errStr string) {
	tsHerd, errStr = herd.RunWithTimeout(ctx, ScheduleTimeout, func(ctx context.Context) (time.Time, error) {
		return s.herd.FindConsensusTime(ctx, online)
	})
	if errStr != "" {
		s.logDecision(transcript, Decision{Phase: "execute", ExperimentID: e.ID, Outcome: "failed", Reason: errStr})
		return tsHerd, nil, append(offline, online...), errStr
	}

	startAt := time.Now().Add(60 * time.Second)
	var started, failedToStart []string
	for _, o := range online {
		cmd := fmt.Sprintf("shepherd-sheep run --experiment=%s --observer=%s --time-start=%d", e.ID, o, startAt.Unix())
		_, taskErrStr := herd.RunWithTimeout(ctx, ScheduleTimeout, func(ctx context.Context) (herd.TaskResult, error) {
			return s.herd.RunTask(ctx, o, cmd)
		})
		if taskErrStr != "" {
			failedToStart = append(failedToStart, o)
			continue
		}
		started = append(started, o)
	}
	offline = append(offline, failedToStart...)
	if len(started) == 0 {
		msg := fmt.Sprintf("every online observer failed to start: %v", failedToStart)
		s.logDecision(transcript, Decision{Phase: "execute", ExperimentID: e.ID, Outcome: "failed", Reason: msg})
		return tsHerd, nil, offline, msg
	}

	if err := s.store.RecordExecuted(ctx, e.ID, startAt, e.Version); err == nil {
		e.Version++
		e.ExecutedAt = &startAt
	}
	s.logDecision(transcript, Decision{Phase: "execute", ExperimentID: e.ID, Outcome: "started", Reason: fmt.Sprintf("failed_to_start=%v", failedToStart)})

	deadline := e.Experiment.Duration + CompletionSlack
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	remaining := append([]string(nil), started...)
	for len(remaining) > 0 {
		select {
		case <-waitCtx.Done():
			msg := fmt.Sprintf("timeout (%s) during execution waiting on %v", deadline, remaining)
			s.logDecision(transcript, Decision{Phase: "execute", ExperimentID: e.ID, Outcome: "timeout", Reason: msg})
			offline = append(offline, remaining...)
			return tsHerd, subtract(started, remaining), offline, msg
		case <-time.After(servicePollInterval):
		}

		var stillRunning []string
		for _, o := range remaining {
			active, err := s.herd.ServiceIsActive(waitCtx, o, sheepService)
			if err != nil {
				offline = append(offline, o)
				continue
			}
			if active {
				stillRunning = append(stillRunning, o)
			}
		}
		remaining = stillRunning
	}

	s.logDecision(transcript, Decision{Phase: "execute", ExperimentID: e.ID, Outcome: "complete"})
	return tsHerd, started, offline, ""
}

func subtract(all, remove []string) []string {
	removeSet := make(map[string]bool, len(remove))
	for _, o := range remove {
		removeSet[o] = true
	}
	var out []string
	for _, o := range all {
		if !removeSet[o] {
			out = append(out, o)
		}
	}
	return out
}

// collectSettleDelay is the I/O-settle sleep before log fetch, a var so
// tests can shorten it.
var collectSettleDelay = 30 * time.Second

// collect is phase 4: after an I/O-settle sleep, fetch each online
// observer's log since ts_herd and a scheduler journal excerpt since
// loop start, then translate observer-relative result paths into the
// server-side layout and recompute result size.
func (s *Scheduler) collect(ctx context.Context, transcript *[]string, e *store.WebExperiment, online, offline []string, tsHerd, loopStart time.Time) (map[string]store.ObserverOutput, []string, string) {
	select {
	case <-ctx.Done():
	case <-time.After(collectSettleDelay):
	}

	if journal, errStr := fetchSchedulerJournal(ctx, loopStart); errStr != "" {
		s.logDecision(transcript, Decision{Phase: "collect", ExperimentID: e.ID, Outcome: "journal_fetch_failed", Reason: errStr})
	} else if journal != "" {
		s.logDecision(transcript, Decision{Phase: "collect", ExperimentID: e.ID, Outcome: "journal_fetched"})
		*transcript = append(*transcript, journal)
	}

	since := tsHerd
	if since.IsZero() {
		since = loopStart
	}
	outputs := s.fetchOutputs(ctx, transcript, e, online, offline, since)

	if len(online) == 0 {
		s.logDecision(transcript, Decision{Phase: "collect", ExperimentID: e.ID, Outcome: "no_online_observers"})
		return outputs, offline, "no observer was available to collect from"
	}
	s.logDecision(transcript, Decision{Phase: "collect", ExperimentID: e.ID, Outcome: "complete"})
	return outputs, offline, ""
}

// fetchSchedulerJournal captures the control-plane host's own journal
// excerpt since the run began, bounded by FetchSchedulerLogTimeout. This
// talks to the local host directly, not through the Herd, since it is
// the scheduler's own log, not an observer's.
func fetchSchedulerJournal(ctx context.Context, since time.Time) (string, string) {
	return herd.RunWithTimeout(ctx, FetchSchedulerLogTimeout, func(ctx context.Context) (string, error) {
		cmd := exec.CommandContext(ctx, "journalctl", "-u", "shepherd-scheduler", "--since", since.Format(time.RFC3339), "--no-pager")
		out, err := cmd.CombinedOutput()
		if err != nil {
			return string(out), err
		}
		return string(out), nil
	})
}

func (s *Scheduler) fetchOutputs(ctx context.Context, transcript *[]string, e *store.WebExperiment, online, offline []string, since time.Time) map[string]store.ObserverOutput {
	offlineSet := make(map[string]bool, len(offline))
	for _, o := range offline {
		offlineSet[o] = true
	}

	outputs := make(map[string]store.ObserverOutput, len(online))
	for _, o := range online {
		if offlineSet[o] {
			continue
		}
		logs, errStr := herd.RunWithTimeout(ctx, FetchLogsTimeout, func(ctx context.Context) (string, error) {
			return s.herd.ServiceGetLogs(ctx, o, sheepService, since)
		})
		if errStr != "" {
			s.logDecision(transcript, Decision{Phase: "collect", ExperimentID: e.ID, Outcome: "fetch_failed", Reason: o + ": " + errStr})
			continue
		}
		outputs[o] = store.ObserverOutput{ExitCode: 0, Stdout: logs, HasData: true}
	}
	return outputs
}

// buildResultPaths derives per-observer and shared content paths from
// the experiment ID; the actual file layout on the storage backend is a
// detail of the out-of-scope API/storage surface, so this only records
// the paths the scheduler considers authoritative. Observers with no
// output are dropped rather than given an empty path entry, per the
// spec's "drop + log" resolution for missing server-side paths.
func (s *Scheduler) buildResultPaths(e *store.WebExperiment, outputs map[string]store.ObserverOutput) (resultPaths, contentPaths map[string]string, size int64) {
	resultPaths = make(map[string]string, len(outputs))
	contentPaths = make(map[string]string, len(outputs))
	for o, out := range outputs {
		if !out.HasData {
			log.Printf("scheduler: experiment %s: dropping result path for %s, no data reported", e.ID, o)
			continue
		}
		resultPaths[o] = fmt.Sprintf("results/%s/%s.h5", e.ID, o)
		contentPaths[o] = fmt.Sprintf("content/%s/%s", e.ID, o)
		size += int64(len(out.Stdout)) + int64(len(out.Stderr))
	}
	return resultPaths, contentPaths, size
}

func (s *Scheduler) finalize(ctx context.Context, transcript *[]string, e *store.WebExperiment, schedulerError string, hadError bool, touchedObservers []string) {
	for _, o := range touchedObservers {
		s.cleanupObserver(ctx, o)
	}

	finishedAt := time.Now()
	transcriptText := strings.Join(*transcript, "\n")
	if err := s.store.FinalizeExperiment(ctx, e.ID, finishedAt, schedulerError, transcriptText, e.Version); err != nil {
		s.logDecision(transcript, Decision{Phase: "finalize", ExperimentID: e.ID, Outcome: "store_error", Reason: err.Error()})
		return
	}
	e.Version++
	e.FinishedAt = &finishedAt
	e.SchedulerError = schedulerError

	state := lifecycle.Derive(e)
	s.logDecision(transcript, Decision{Phase: "finalize", ExperimentID: e.ID, Outcome: string(state)})
	observability.ExperimentsTotal.WithLabelValues(string(state)).Inc()

	if s.notifier != nil {
		queueEmpty := s.ownerQueueEmpty(ctx, e)
		if err := s.notifier.NotifyTerminal(ctx, e, state, hadError, queueEmpty); err != nil {
			reason := fmt.Sprintf("scheduler: notifying owner of experiment %s: %v", e.ID, err)
			s.logDecision(nil, Decision{Phase: "notify", ExperimentID: e.ID, Outcome: "failed", Reason: reason})
		}
	}
}

// ownerQueueEmpty reports whether e's owner has no other experiment
// still scheduled or running, used to decide whether this completion
// empties the owner's queue (the notifier's "you're all done" trigger).
func (s *Scheduler) ownerQueueEmpty(ctx context.Context, e *store.WebExperiment) bool {
	owned, err := s.store.ListExperimentsByOwner(ctx, e.OwnerID)
	if err != nil {
		log.Printf("scheduler: checking owner queue for %s: %v", e.OwnerID, err)
		return false
	}
	for _, other := range owned {
		if other.ID == e.ID {
			continue
		}
		switch lifecycle.Derive(other) {
		case lifecycle.StateScheduled, lifecycle.StateRunning:
			return false
		}
	}
	return true
}

// rebootSettleDelay is how long herdReboot waits between issuing reboots
// and re-sampling the online set, a var so tests can shorten it.
var rebootSettleDelay = 2 * time.Minute

// herdReboot implements the §4.5 reboot semantics invoked at loop tail
// when a run had_error: capture the online set, issue reboot to every
// touched observer, wait for them to come back, and re-sample.
func (s *Scheduler) herdReboot(ctx context.Context, transcript *[]string, observers []string) {
	preOnline, _, _ := s.herd.Inventorize(ctx)

	for _, o := range observers {
		herd.RunWithTimeout(ctx, RebootTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.herd.Reboot(ctx, o)
		})
	}

	select {
	case <-ctx.Done():
	case <-time.After(rebootSettleDelay):
	}

	s.herd.Open(ctx, observers)
	postOnline, _, _ := s.herd.Inventorize(ctx)

	s.logDecision(transcript, Decision{
		Phase: "reboot", Outcome: "done",
		Reason: fmt.Sprintf("pre_online=%v post_online=%v", preOnline, postOnline),
	})
}
