package annex

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LeaseState is the lease renewal protocol state.
type LeaseState string

const (
	LeaseIdle               LeaseState = "idle"
	LeaseHeartbeatSent      LeaseState = "heartbeat_sent"
	LeaseHeartbeatConfirmed LeaseState = "heartbeat_confirmed"
	LeaseDurationUpdated    LeaseState = "duration_updated"
)

// LeaseRenewer shortens (or extends) an annex lease with a two-phase
// protocol: emit a heartbeat datapoint, poll until the monitoring
// aggregation has observed it, and only then submit the duration
// update. Committing a shorter lease against stale monitoring data
// risks a false expiry; the confirmation poll is the synchronization
// point that rules that out.
type LeaseRenewer struct {
	metrics MetricsClient
	stacks  StackClient
	poller  *Poller
	log     *zap.Logger
	now     func() time.Time

	state LeaseState
}

// NewLeaseRenewer creates a LeaseRenewer.
func NewLeaseRenewer(metrics MetricsClient, stacks StackClient, poller *Poller, log *zap.Logger) *LeaseRenewer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LeaseRenewer{
		metrics: metrics,
		stacks:  stacks,
		poller:  poller,
		log:     log,
		now:     time.Now,
		state:   LeaseIdle,
	}
}

// State returns the current protocol state.
func (r *LeaseRenewer) State() LeaseState {
	return r.state
}

// Renew runs the protocol to completion for one annex. A heartbeat
// emission failure is fatal and no update is issued. The confirmation
// poll has no timeout; it relies on the datapoint becoming visible
// eventually.
func (r *LeaseRenewer) Renew(ctx context.Context, annexName string, leaseMinutes int) error {
	if leaseMinutes <= 0 {
		return ErrArgument("lease duration must be positive minutes")
	}

	emitted := r.now()
	if err := r.metrics.EmitHeartbeat(ctx, annexName, emitted); err != nil {
		return ErrProvisioning("failed to emit lease heartbeat").
			WithCause(err).WithResource("annex", annexName)
	}
	r.state = LeaseHeartbeatSent
	r.log.Info("emitted lease heartbeat",
		zap.String("annex", annexName), zap.Time("at", emitted))

	// The statistics window is anchored at the current time truncated
	// to the minute, end exclusive one minute later.
	windowStart := r.now().Truncate(time.Minute)
	windowEnd := windowStart.Add(time.Minute)

	err := r.poller.Await(ctx, WaitSpec{
		Name:     "heartbeat confirmation",
		Interval: HeartbeatPollInterval,
		Poll: func(ctx context.Context) (int, bool, error) {
			samples, err := r.metrics.HeartbeatSamples(ctx, annexName, windowStart, windowEnd)
			if err != nil {
				return 0, false, ErrRemote("failed to query heartbeat statistics").
					WithCause(err).WithResource("annex", annexName)
			}
			return samples, samples > 0, nil
		},
	})
	if err != nil {
		return err
	}
	r.state = LeaseHeartbeatConfirmed
	r.log.Info("heartbeat visible in aggregation", zap.String("annex", annexName))

	if err := r.stacks.UpdateStackParameters(ctx, annexName, BuildLeaseParams(leaseMinutes)); err != nil {
		return ErrProvisioning("failed to update lease duration").
			WithCause(err).WithResource("stack", annexName)
	}
	r.state = LeaseDurationUpdated
	r.log.Info("lease duration updated",
		zap.String("annex", annexName), zap.Int("lease_minutes", leaseMinutes))
	return nil
}
