package annex

import (
	"context"

	"go.uber.org/zap"
)

// StackProvisioner submits stack operations and observes their
// convergence. It consumes the SecretStager's output (staged-secret
// locations inside the StackSpec) and the Allocate distribution for
// resizes.
type StackProvisioner struct {
	stacks StackClient
	pools  PoolClient
	poller *Poller
	log    *zap.Logger
}

// NewStackProvisioner creates a StackProvisioner.
func NewStackProvisioner(stacks StackClient, pools PoolClient, poller *Poller, log *zap.Logger) *StackProvisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &StackProvisioner{stacks: stacks, pools: pools, poller: poller, log: log}
}

// Provision submits the stack creation once and returns the stack ID.
func (p *StackProvisioner) Provision(ctx context.Context, spec *StackSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", ErrArgument(err.Error()).WithOperation("provision")
	}

	stackID, err := p.stacks.CreateStack(ctx, spec)
	if err != nil {
		return "", ErrProvisioning("failed to create annex stack").
			WithCause(err).WithResource("stack", spec.Name)
	}
	p.log.Info("submitted stack creation",
		zap.String("stack", spec.Name), zap.String("stack_id", stackID))
	return stackID, nil
}

// AwaitPools blocks until the stack exposes want resource pools and
// returns their group IDs in ordinal order. Discovery goes through the
// poller rather than trusting the create response: a describe issued
// immediately after create may not reflect it yet.
func (p *StackProvisioner) AwaitPools(ctx context.Context, name string, want int) ([]string, error) {
	var groupIDs []string
	err := p.poller.Await(ctx, WaitSpec{
		Name:     "resource pool creation",
		Interval: StackPollInterval,
		Poll: func(ctx context.Context) (int, bool, error) {
			status, err := p.stacks.DescribeStack(ctx, name)
			if err != nil {
				if IsCategory(err, CategoryNotFound) {
					// Create not yet visible.
					return 0, false, nil
				}
				return 0, false, err
			}
			groupIDs = status.PoolGroupIDs
			return len(groupIDs), len(groupIDs) >= want, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return groupIDs, nil
}

// Resize distributes total across the given pools and applies each
// capacity directly to its scaling group, desired equal to maximum.
// The stack itself is never resubmitted for a resize. Returns the
// applied distribution.
func (p *StackProvisioner) Resize(ctx context.Context, groupIDs []string, total int) ([]int, error) {
	if len(groupIDs) == 0 {
		return nil, ErrArgument("resize requires at least one resource pool")
	}
	if total < 0 {
		return nil, ErrArgument("resize total must be non-negative")
	}

	sizes := Allocate(total, len(groupIDs))
	for i, groupID := range groupIDs {
		if err := p.pools.SetPoolCapacity(ctx, groupID, sizes[i]); err != nil {
			return nil, ErrProvisioning("failed to set pool capacity").
				WithCause(err).WithResource("pool", groupID)
		}
	}
	p.log.Info("applied capacity distribution",
		zap.Int("total", total), zap.Ints("sizes", sizes))
	return sizes, nil
}

// AwaitCapacity blocks until the pools' in-service instance counts sum
// to total.
func (p *StackProvisioner) AwaitCapacity(ctx context.Context, groupIDs []string, total int) error {
	return p.poller.Await(ctx, WaitSpec{
		Name:     "capacity convergence",
		Interval: StackPollInterval,
		Poll: func(ctx context.Context) (int, bool, error) {
			obs, err := p.pools.DescribePools(ctx, groupIDs)
			if err != nil {
				return 0, false, ErrRemote("failed to describe resource pools").WithCause(err)
			}
			inService := 0
			for _, o := range obs {
				inService += o.InService
			}
			return inService, inService == total, nil
		},
	})
}

// Observe returns the current pool observations for an annex.
func (p *StackProvisioner) Observe(ctx context.Context, groupIDs []string) ([]PoolObservation, error) {
	obs, err := p.pools.DescribePools(ctx, groupIDs)
	if err != nil {
		return nil, ErrRemote("failed to describe resource pools").WithCause(err)
	}
	return obs, nil
}
