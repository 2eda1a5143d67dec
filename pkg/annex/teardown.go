package annex

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// TeardownManager owns the compensating cleanup for one controller
// invocation. It is invoked identically from the normal-exit finalizer
// and from the interrupt handler; a one-shot completion guard makes
// the unwind run at most once regardless of which path fires first.
type TeardownManager struct {
	stager *SecretStager
	stacks StackClient
	log    *zap.Logger

	once sync.Once
	err  *CleanupError
}

// NewTeardownManager creates a TeardownManager.
func NewTeardownManager(stager *SecretStager, stacks StackClient, log *zap.Logger) *TeardownManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &TeardownManager{stager: stager, stacks: stacks, log: log}
}

// Unwind runs the compensating deletes for whatever the staging ledger
// still records as owned, in strict reverse staging order. Later calls
// return the first call's result without re-running anything.
//
// A failure is reported, not retried: looping here would mask a
// persistent remote failure.
func (t *TeardownManager) Unwind(ctx context.Context) error {
	t.once.Do(func() {
		if t.stager == nil || t.stager.Ledger().Empty() {
			return
		}
		t.log.Info("unwinding staged secrets")
		t.err = t.stager.Unstage(ctx)
		if t.err != nil {
			t.log.Error("compensating cleanup failed; manual cleanup required",
				zap.Strings("orphaned", t.err.Orphaned))
		}
	})
	if t.err != nil {
		return t.err
	}
	return nil
}

// DeleteAnnex handles an explicit delete request. It skips staging
// teardown entirely: the annex owns its staged material, so the
// controller deletes only the stack and returns.
func (t *TeardownManager) DeleteAnnex(ctx context.Context, name string) error {
	if err := t.stacks.DeleteStack(ctx, name); err != nil {
		return ErrCleanup("failed to delete annex stack").
			WithCause(err).WithResource("stack", name)
	}
	t.log.Info("requested annex deletion", zap.String("annex", name))
	return nil
}
