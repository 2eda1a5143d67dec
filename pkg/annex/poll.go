package annex

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Polling intervals used by the controller. The remote service
// converges asynchronously; these are fixed, with no backoff or
// jitter.
const (
	// StackPollInterval is used for stack and pool convergence.
	StackPollInterval = 5 * time.Second
	// HeartbeatPollInterval is used for heartbeat confirmation.
	HeartbeatPollInterval = 1 * time.Second
)

// WaitSpec describes one convergence wait.
type WaitSpec struct {
	// Name identifies the wait in progress reports.
	Name string

	// Interval is the fixed polling interval.
	Interval time.Duration

	// Deadline bounds the total wait; zero means unbounded. Production
	// call sites pass zero.
	Deadline time.Duration

	// Poll fetches remote state once and evaluates the predicate.
	// progress is a scalar used for change-only reporting.
	Poll func(ctx context.Context) (progress int, satisfied bool, err error)
}

// Poller blocks a caller until a predicate over remote state holds.
// It reports progress only when the observed scalar changes, so a long
// wait does not flood the log. Cancellation is not the poller's
// responsibility: an interrupt is handled by the caller's installed
// handler, which cancels ctx and makes Await return.
type Poller struct {
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller.
func NewPoller(log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{log: log, sleep: sleepCtx}
}

// Await polls spec.Poll at spec.Interval until it reports satisfied.
// With a zero deadline the wait is unbounded.
func (p *Poller) Await(ctx context.Context, spec WaitSpec) error {
	var deadline time.Time
	if spec.Deadline > 0 {
		deadline = time.Now().Add(spec.Deadline)
	}

	lastProgress := -1
	for {
		progress, satisfied, err := spec.Poll(ctx)
		if err != nil {
			return err
		}
		if satisfied {
			return nil
		}

		if progress != lastProgress {
			p.log.Info("waiting for convergence",
				zap.String("wait", spec.Name),
				zap.Int("observed", progress))
			lastProgress = progress
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrRemote("convergence deadline exceeded").WithOperation(spec.Name)
		}

		if err := p.sleep(ctx, spec.Interval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
