// Package notifier implements C6: email on terminal transitions, with
// admin vs owner recipient logic and a transcript attachment on failure.
// The attachment shape is grounded on control_plane/incident/capture.go's
// "bundle state + events into one exportable report", re-expressed as a
// mail attachment instead of a downloadable JSON file.
package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/time/rate"
	gomail "gopkg.in/mail.v2"

	"github.com/cenkalti/backoff/v4"
	"github.com/nes-lab/shepherd-webapi/internal/lifecycle"
	"github.com/nes-lab/shepherd-webapi/internal/store"
)

// Notifier sends a message when an experiment reaches a terminal state.
// hadErrors is the scheduler's had_error verdict for the run (broader
// than state == failed: a finished run can still have had errors, e.g.
// one offline observer). queueEmpty reports whether this completion
// leaves the owner with nothing else scheduled or running.
type Notifier interface {
	NotifyTerminal(ctx context.Context, e *store.WebExperiment, state lifecycle.State, hadErrors, queueEmpty bool) error
}

// Report captures a failure report for admins, named IncidentReport in
// the teacher. NotifyTerminal does not build or attach a Report: a
// failure mail carries the scheduler log and each observer's output as
// separate attachments instead.
type Report struct {
	ExperimentID   string
	OwnerID        string
	FinalState     string
	SchedulerError string
	SchedulerLog   string
	FinishedAt     time.Time
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// AdminRecipients is notified on every failure in addition to the
	// owner; the original always includes at least an operations
	// mailbox here.
	AdminRecipients []string
}

// SMTPNotifier is the production Notifier, backed by gopkg.in/mail.v2.
// It rate-limits outbound sends so a burst of terminal transitions (e.g.
// after a fleet-wide outage clears and several stuck experiments finalize
// at once) doesn't hammer the relay, mirroring the teacher's
// TokenBucketLimiter shape in scheduler/limiter.go.
type SMTPNotifier struct {
	cfg     SMTPConfig
	users   UserLookup
	limiter *rate.Limiter
}

// UserLookup is the narrow dependency the notifier needs from the store:
// resolving an owner ID to an email address.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
}

// NewSMTPNotifier returns a Notifier allowing at most ratePerMinute sends
// per minute, bursting up to that same amount.
func NewSMTPNotifier(cfg SMTPConfig, users UserLookup, ratePerMinute int) *SMTPNotifier {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &SMTPNotifier{
		cfg:     cfg,
		users:   users,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute),
	}
}

// NotifyTerminal implements the recipient rule: the admin/contact
// addresses are the recipient if the run had errors or the owner can't
// be resolved; otherwise the owner is, optionally with a "you're all
// done" addendum. had_errors attaches the scheduler log and every
// observer's terminal output; a missing owner is noted in the body
// rather than silently dropping the mail.
func (n *SMTPNotifier) NotifyTerminal(ctx context.Context, e *store.WebExperiment, state lifecycle.State, hadErrors, queueEmpty bool) error {
	if !lifecycle.IsTerminal(state) {
		return fmt.Errorf("notifier: %s is not a terminal state", state)
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notifier: rate limit wait: %w", err)
	}

	owner, ownerErr := n.users.GetUserByID(ctx, e.OwnerID)

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.cfg.From)

	toAdmin := hadErrors || ownerErr != nil
	if toAdmin {
		msg.SetHeader("To", n.cfg.AdminRecipients...)
		if ownerErr == nil {
			msg.SetHeader("Cc", owner.Email)
		}
	} else {
		msg.SetHeader("To", owner.Email)
	}

	msg.SetHeader("Subject", fmt.Sprintf("experiment %s %s", e.ID, state))
	msg.SetBody("text/plain", n.body(e, state, hadErrors, ownerErr, queueEmpty))

	if hadErrors {
		msg.Attach("scheduler.log", gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write([]byte(e.SchedulerLog))
			return err
		}))
		for observer, out := range e.ObserversOutput {
			out := out
			msg.Attach(observer+".log", gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "exit_code: %d\n\n--- stdout ---\n%s\n--- stderr ---\n%s\n", out.ExitCode, out.Stdout, out.Stderr)
				return err
			}))
		}
	}

	dialer := gomail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.Username, n.cfg.Password)

	op := func() error { return dialer.DialAndSend(msg) }
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("notifier: sending mail for experiment %s: %w", e.ID, err)
	}
	return nil
}

func (n *SMTPNotifier) body(e *store.WebExperiment, state lifecycle.State, hadErrors bool, ownerErr error, queueEmpty bool) string {
	var b strings.Builder
	if ownerErr != nil {
		fmt.Fprintf(&b, "Owner %s could not be resolved (%v); routed to admin.\n\n", e.OwnerID, ownerErr)
	}

	switch {
	case state == lifecycle.StateFinished && !hadErrors:
		fmt.Fprintf(&b, "Your experiment %q (%s) finished successfully.\n", e.Experiment.Name, e.ID)
	case state == lifecycle.StateFinished:
		fmt.Fprintf(&b, "Your experiment %q (%s) finished, but with errors: %s\n\nPer-observer output and the scheduler log are attached.\n", e.Experiment.Name, e.ID, e.SchedulerError)
	default:
		fmt.Fprintf(&b, "Your experiment %q (%s) failed.\n\nReason: %s\n\nPer-observer output and the scheduler log are attached.\n", e.Experiment.Name, e.ID, e.SchedulerError)
	}

	if !hadErrors && (e.Experiment.EmailOnFinish || queueEmpty) {
		b.WriteString("\nYou're all done: no other experiments of yours are scheduled or running.\n")
	}
	return b.String()
}

var _ Notifier = (*SMTPNotifier)(nil)
