package annex

import (
	"context"
	"errors"
	"testing"
	"time"
)

// leaseHarness wires a LeaseRenewer to scripted collaborators sharing
// one ordered event log.
type leaseHarness struct {
	events []string

	emitErr     error
	samplesErr  error
	updateErr   error
	visibleAt   int // query count after which the heartbeat is visible
	queries     int
	windowStart time.Time
	windowEnd   time.Time
}

func (h *leaseHarness) EmitHeartbeat(ctx context.Context, annexName string, at time.Time) error {
	h.events = append(h.events, "emit")
	return h.emitErr
}

func (h *leaseHarness) HeartbeatSamples(ctx context.Context, annexName string, windowStart, windowEnd time.Time) (int, error) {
	h.events = append(h.events, "samples")
	h.windowStart = windowStart
	h.windowEnd = windowEnd
	if h.samplesErr != nil {
		return 0, h.samplesErr
	}
	h.queries++
	if h.queries >= h.visibleAt {
		return 1, nil
	}
	return 0, nil
}

func (h *leaseHarness) CreateStack(ctx context.Context, spec *StackSpec) (string, error) {
	return "", errors.New("not implemented")
}

func (h *leaseHarness) DescribeStack(ctx context.Context, name string) (*StackStatus, error) {
	return nil, ErrNotFound("stack", name)
}

func (h *leaseHarness) UpdateStackParameters(ctx context.Context, name string, params []Param) error {
	h.events = append(h.events, "update")
	return h.updateErr
}

func (h *leaseHarness) DeleteStack(ctx context.Context, name string) error { return nil }

func (h *leaseHarness) ListFailedDeletions(ctx context.Context) ([]string, error) {
	return nil, nil
}

func newTestRenewer(h *leaseHarness, now time.Time) *LeaseRenewer {
	poller := NewPoller(nil)
	poller.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	r := NewLeaseRenewer(h, h, poller, nil)
	r.now = func() time.Time { return now }
	return r
}

// The duration update must never race ahead of the monitoring
// aggregation: it is issued only after a non-zero sample count.
func TestRenewUpdatesOnlyAfterConfirmation(t *testing.T) {
	h := &leaseHarness{visibleAt: 3}
	r := newTestRenewer(h, time.Now())

	if err := r.Renew(context.Background(), "annex-abc123", 45); err != nil {
		t.Fatalf("Renew() error: %v", err)
	}

	want := []string{"emit", "samples", "samples", "samples", "update"}
	if len(h.events) != len(want) {
		t.Fatalf("events = %v, want %v", h.events, want)
	}
	for i := range want {
		if h.events[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (all: %v)", i, h.events[i], want[i], h.events)
		}
	}
	if r.State() != LeaseDurationUpdated {
		t.Fatalf("state = %q, want %q", r.State(), LeaseDurationUpdated)
	}
}

func TestRenewEmitFailureIsFatal(t *testing.T) {
	h := &leaseHarness{emitErr: errors.New("metric rejected")}
	r := newTestRenewer(h, time.Now())

	err := r.Renew(context.Background(), "annex-abc123", 45)
	if !IsCategory(err, CategoryProvisioning) {
		t.Fatalf("error = %v, want provisioning category", err)
	}
	for _, e := range h.events {
		if e == "update" {
			t.Fatal("duration updated after a failed heartbeat emission")
		}
	}
	if r.State() != LeaseIdle {
		t.Fatalf("state = %q, want %q", r.State(), LeaseIdle)
	}
}

func TestRenewQueryFailureStopsProtocol(t *testing.T) {
	h := &leaseHarness{samplesErr: errors.New("throttled")}
	r := newTestRenewer(h, time.Now())

	err := r.Renew(context.Background(), "annex-abc123", 45)
	if !IsCategory(err, CategoryRemote) {
		t.Fatalf("error = %v, want remote category", err)
	}
	if r.State() != LeaseHeartbeatSent {
		t.Fatalf("state = %q, want %q", r.State(), LeaseHeartbeatSent)
	}
}

func TestRenewWindowIsMinuteAnchored(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 7, 42, 150e6, time.UTC)
	h := &leaseHarness{visibleAt: 1}
	r := newTestRenewer(h, now)

	if err := r.Renew(context.Background(), "annex-abc123", 45); err != nil {
		t.Fatalf("Renew() error: %v", err)
	}

	wantStart := time.Date(2026, 8, 29, 14, 7, 0, 0, time.UTC)
	if !h.windowStart.Equal(wantStart) {
		t.Fatalf("window start = %v, want %v", h.windowStart, wantStart)
	}
	if !h.windowEnd.Equal(wantStart.Add(time.Minute)) {
		t.Fatalf("window end = %v, want %v", h.windowEnd, wantStart.Add(time.Minute))
	}
}

func TestRenewRejectsNonPositiveLease(t *testing.T) {
	h := &leaseHarness{visibleAt: 1}
	r := newTestRenewer(h, time.Now())

	if err := r.Renew(context.Background(), "annex-abc123", 0); !IsCategory(err, CategoryArgument) {
		t.Fatalf("error = %v, want argument category", err)
	}
	if len(h.events) != 0 {
		t.Fatalf("events = %v, want none", h.events)
	}
}
