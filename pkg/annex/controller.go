package annex

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultInstanceType is used for a pool spec that does not name one.
const DefaultInstanceType = "m5.large"

// SizeUnchanged leaves an existing annex's capacity alone.
const SizeUnchanged = -1

// Staging object keys within the annex's private container.
const (
	credentialObjectKey = "credential"
	configObjectKey     = "config"
)

// Controller manages exactly one annex per invocation, synchronously.
type Controller struct {
	stacks    StackClient
	pools     PoolClient
	store     ObjectStore
	metrics   MetricsClient
	inventory InventoryClient

	log    *zap.Logger
	poller *Poller
	now    func() time.Time

	// teardown is armed when an invocation starts staging and stays
	// armed until ownership transfers to the created annex.
	teardown *TeardownManager
}

// ControllerOption configures the Controller.
type ControllerOption func(*Controller)

// WithStackClient sets the orchestration stack client.
func WithStackClient(c StackClient) ControllerOption {
	return func(ctl *Controller) { ctl.stacks = c }
}

// WithPoolClient sets the resource pool client.
func WithPoolClient(c PoolClient) ControllerOption {
	return func(ctl *Controller) { ctl.pools = c }
}

// WithObjectStore sets the staging object store.
func WithObjectStore(s ObjectStore) ControllerOption {
	return func(ctl *Controller) { ctl.store = s }
}

// WithMetricsClient sets the monitoring client.
func WithMetricsClient(m MetricsClient) ControllerOption {
	return func(ctl *Controller) { ctl.metrics = m }
}

// WithInventoryClient sets the inventory lookup client.
func WithInventoryClient(i InventoryClient) ControllerOption {
	return func(ctl *Controller) { ctl.inventory = i }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) ControllerOption {
	return func(ctl *Controller) { ctl.log = log }
}

// NewController creates a Controller with the given options.
func NewController(opts ...ControllerOption) *Controller {
	ctl := &Controller{
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(ctl)
	}
	ctl.poller = NewPoller(ctl.log)
	return ctl
}

// UpRequest describes one create-or-update invocation.
type UpRequest struct {
	// Project is the project identity. Required.
	Project string

	// CentralManager is the central manager address the annex attaches
	// to. Required.
	CentralManager string

	// KeypairName is the keypair identity baked into the stack.
	KeypairName string

	// Size is the desired total instance count, or SizeUnchanged to
	// leave an existing annex's capacity alone.
	Size int

	// ExpiresAt requests a lease ending at the given instant; zero
	// keeps the default (on create) or current (on update) lease.
	ExpiresAt time.Time

	// NetworkID is the network placement; empty resolves the default
	// network from inventory.
	NetworkID string

	// Pools describes the resource pools for a fresh annex; ignored on
	// update (composition is immutable). Empty requests one pool built
	// from inventory defaults.
	Pools []PoolSpec

	// Credential is the required secret material for a fresh annex.
	Credential []byte

	// Config is optional config material for a fresh annex.
	Config []byte
}

// Up creates the annex if absent, then applies any requested resize
// and lease renewal, and blocks until the requested capacity has
// converged.
func (c *Controller) Up(ctx context.Context, req UpRequest) (*Annex, error) {
	if err := c.validateUp(&req); err != nil {
		return nil, err
	}

	name := DeriveName(req.CentralManager, req.Project)
	log := c.log.With(zap.String("annex", name), zap.String("project", req.Project))

	status, err := c.stacks.DescribeStack(ctx, name)
	switch {
	case err == nil:
		log.Info("annex exists", zap.String("status", status.Status))
		return c.update(ctx, name, status, req, log)
	case IsCategory(err, CategoryNotFound):
		return c.create(ctx, name, req, log)
	default:
		return nil, ErrRemote("failed to resolve annex state").
			WithCause(err).WithResource("stack", name)
	}
}

func (c *Controller) validateUp(req *UpRequest) error {
	if req.Project == "" {
		return ErrArgument("project identity is required")
	}
	if req.CentralManager == "" {
		return ErrArgument("central manager address is required")
	}
	if req.Size < 0 && req.Size != SizeUnchanged {
		return ErrArgument("size must be non-negative")
	}
	if len(req.Pools) > MaxResourcePools {
		return ErrArgument("too many resource pools requested")
	}
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(c.now()) {
		return ErrArgument("expiry must be in the future")
	}
	return nil
}

// create runs the staged-provisioning workflow for a fresh annex.
func (c *Controller) create(ctx context.Context, name string, req UpRequest, log *zap.Logger) (*Annex, error) {
	if len(req.Credential) == 0 {
		return nil, ErrArgument("credential material is required to create an annex")
	}
	if req.Size == SizeUnchanged {
		return nil, ErrArgument("size is required to create an annex")
	}

	pools, networkID, subnets, err := c.resolveInventory(ctx, req, log)
	if err != nil {
		return nil, err
	}

	stager := NewSecretStager(c.store, log)
	c.teardown = NewTeardownManager(stager, c.stacks, log)

	staged, err := stager.Stage(ctx, StagingInput{
		Container:     DeriveContainerName(req.CentralManager, req.Project),
		CredentialKey: credentialObjectKey,
		Credential:    req.Credential,
		ConfigKey:     configObjectKey,
		Config:        req.Config,
	})
	if err != nil {
		return nil, err
	}

	leaseMinutes := DefaultLeaseMinutes
	if !req.ExpiresAt.IsZero() {
		leaseMinutes = minutesUntil(c.now(), req.ExpiresAt)
	}

	spec := &StackSpec{
		Name:               name,
		TemplateURL:        TemplateURL,
		CentralManager:     req.CentralManager,
		KeypairName:        req.KeypairName,
		LeaseMinutes:       leaseMinutes,
		TotalSize:          req.Size,
		Project:            req.Project,
		CredentialLocation: staged.CredentialLocation,
		ConfigLocation:     staged.ConfigLocation,
		NetworkID:          networkID,
		SubnetIDs:          subnets,
		Pools:              pools,
		RequestToken:       uuid.New().String(),
	}

	provisioner := NewStackProvisioner(c.stacks, c.pools, c.poller, log)

	stackID, err := provisioner.Provision(ctx, spec)
	if err != nil {
		// Ownership never transferred: unwind everything staged.
		if cleanupErr := c.teardown.Unwind(ctx); cleanupErr != nil {
			var ce *CleanupError
			if errors.As(cleanupErr, &ce) {
				ce.OriginalError = err
				return nil, ce
			}
			return nil, cleanupErr
		}
		return nil, err
	}

	// Ownership-transfer point: from here the annex owns the staged
	// material and a lingering teardown must be a no-op.
	stager.Release()
	log.Info("annex stack created", zap.String("stack_id", stackID))

	groupIDs, err := provisioner.AwaitPools(ctx, name, len(pools))
	if err != nil {
		return nil, err
	}

	sizes, err := provisioner.Resize(ctx, groupIDs, req.Size)
	if err != nil {
		return nil, err
	}

	if err := provisioner.AwaitCapacity(ctx, groupIDs, req.Size); err != nil {
		return nil, err
	}

	return c.describeResult(ctx, name, pools, groupIDs, sizes, leaseMinutes)
}

// update applies resize and lease renewal to an existing annex.
func (c *Controller) update(ctx context.Context, name string, status *StackStatus, req UpRequest, log *zap.Logger) (*Annex, error) {
	provisioner := NewStackProvisioner(c.stacks, c.pools, c.poller, log)

	groupIDs := status.PoolGroupIDs
	if len(groupIDs) == 0 {
		// Pools may still be materializing from the original create.
		var err error
		groupIDs, err = provisioner.AwaitPools(ctx, name, 1)
		if err != nil {
			return nil, err
		}
	}

	resized := false
	if req.Size != SizeUnchanged {
		if _, err := provisioner.Resize(ctx, groupIDs, req.Size); err != nil {
			return nil, err
		}
		resized = true
	}

	leaseMinutes := 0
	if !req.ExpiresAt.IsZero() {
		leaseMinutes = minutesUntil(c.now(), req.ExpiresAt)
		renewer := NewLeaseRenewer(c.metrics, c.stacks, c.poller, log)
		if err := renewer.Renew(ctx, name, leaseMinutes); err != nil {
			return nil, err
		}
	}

	if resized {
		if err := provisioner.AwaitCapacity(ctx, groupIDs, req.Size); err != nil {
			return nil, err
		}
	}

	return c.Status(ctx, req.Project, req.CentralManager)
}

// resolveInventory fills in network, subnets and pool images from the
// inventory collaborator. On multiple candidates the first is picked
// deterministically, with a warning.
func (c *Controller) resolveInventory(ctx context.Context, req UpRequest, log *zap.Logger) ([]PoolSpec, string, []string, error) {
	networkID := req.NetworkID
	if networkID == "" {
		candidates, err := c.inventory.DefaultNetworks(ctx)
		if err != nil {
			return nil, "", nil, ErrInventory("failed to resolve default network").WithCause(err)
		}
		if len(candidates) == 0 {
			return nil, "", nil, ErrInventory("no default network available")
		}
		if len(candidates) > 1 {
			log.Warn("multiple default networks; picking the first",
				zap.Strings("candidates", candidates))
		}
		networkID = candidates[0]
	}

	subnets, err := c.inventory.SubnetsForNetwork(ctx, networkID)
	if err != nil {
		return nil, "", nil, ErrInventory("failed to list subnets").
			WithCause(err).WithResource("network", networkID)
	}
	if len(subnets) == 0 {
		return nil, "", nil, ErrInventory("network has no subnets").
			WithResource("network", networkID)
	}

	pools := req.Pools
	if len(pools) == 0 {
		pools = []PoolSpec{{InstanceType: DefaultInstanceType}}
	}

	var defaultImage string
	for i := range pools {
		if pools[i].InstanceType == "" {
			pools[i].InstanceType = DefaultInstanceType
		}
		if pools[i].ImageID != "" {
			continue
		}
		if defaultImage == "" {
			images, err := c.inventory.DefaultImages(ctx)
			if err != nil {
				return nil, "", nil, ErrInventory("failed to resolve default image").WithCause(err)
			}
			if len(images) == 0 {
				return nil, "", nil, ErrInventory("no default image available")
			}
			if len(images) > 1 {
				log.Warn("multiple default images; picking the first",
					zap.Strings("candidates", images))
			}
			defaultImage = images[0]
		}
		pools[i].ImageID = defaultImage
	}

	return pools, networkID, subnets, nil
}

func (c *Controller) describeResult(ctx context.Context, name string, pools []PoolSpec, groupIDs []string, sizes []int, leaseMinutes int) (*Annex, error) {
	obs, err := c.pools.DescribePools(ctx, groupIDs)
	if err != nil {
		return nil, ErrRemote("failed to describe resource pools").WithCause(err)
	}

	out := &Annex{
		Name:         name,
		State:        StateActive,
		LeaseMinutes: leaseMinutes,
	}
	for i, groupID := range groupIDs {
		pool := ResourcePool{Ordinal: i, GroupID: groupID}
		if i < len(pools) {
			pool.ImageID = pools[i].ImageID
			pool.InstanceType = pools[i].InstanceType
			pool.SpotPrice = pools[i].SpotPrice
		}
		if i < len(sizes) {
			pool.DesiredCapacity = sizes[i]
			out.DesiredSize += sizes[i]
		}
		if i < len(obs) {
			pool.ObservedCount = obs[i].InService
		}
		out.Pools = append(out.Pools, pool)
	}
	return out, nil
}

// Status describes the annex for a (project, central manager) pair.
func (c *Controller) Status(ctx context.Context, project, centralManager string) (*Annex, error) {
	if project == "" {
		return nil, ErrArgument("project identity is required")
	}
	if centralManager == "" {
		return nil, ErrArgument("central manager address is required")
	}

	name := DeriveName(centralManager, project)
	status, err := c.stacks.DescribeStack(ctx, name)
	if err != nil {
		if IsCategory(err, CategoryNotFound) {
			return &Annex{Name: name, State: StateAbsent}, nil
		}
		return nil, err
	}

	out := &Annex{
		Name:    name,
		StackID: status.StackID,
		State:   status.State,
	}

	if len(status.PoolGroupIDs) > 0 {
		obs, err := c.pools.DescribePools(ctx, status.PoolGroupIDs)
		if err != nil {
			return nil, ErrRemote("failed to describe resource pools").WithCause(err)
		}
		for i, o := range obs {
			out.Pools = append(out.Pools, ResourcePool{
				Ordinal:         i,
				GroupID:         o.GroupID,
				DesiredCapacity: o.Desired,
				ObservedCount:   o.InService,
			})
			out.DesiredSize += o.Desired
		}
	}
	return out, nil
}

// Delete handles an explicit delete request: the annex stack is
// deleted directly, with no staging teardown involved.
func (c *Controller) Delete(ctx context.Context, project, centralManager string) error {
	if project == "" {
		return ErrArgument("project identity is required")
	}
	if centralManager == "" {
		return ErrArgument("central manager address is required")
	}

	name := DeriveName(centralManager, project)
	td := NewTeardownManager(nil, c.stacks, c.log)
	return td.DeleteAnnex(ctx, name)
}

// Teardown runs the armed compensating cleanup, if any. It is safe to
// call from both a signal handler and a normal-exit finalizer; the
// underlying guard makes the unwind run at most once.
func (c *Controller) Teardown(ctx context.Context) error {
	if c.teardown == nil {
		return nil
	}
	return c.teardown.Unwind(ctx)
}

// Maintenance retries deletion for stacks stuck in the terminal
// failed-deletion state. It returns the names retried; individual
// retry failures are logged, not fatal, so one stuck stack cannot
// shadow the rest.
func (c *Controller) Maintenance(ctx context.Context) ([]string, error) {
	names, err := c.stacks.ListFailedDeletions(ctx)
	if err != nil {
		return nil, ErrRemote("failed to list stacks in failed-deletion state").WithCause(err)
	}

	var retried []string
	for _, name := range names {
		if err := c.stacks.DeleteStack(ctx, name); err != nil {
			c.log.Error("retry of stack deletion failed",
				zap.String("stack", name), zap.Error(err))
			continue
		}
		retried = append(retried, name)
	}
	return retried, nil
}

// minutesUntil returns the whole minutes from now to expiry, rounded
// up so the lease never ends before the requested instant.
func minutesUntil(now, expiry time.Time) int {
	d := expiry.Sub(now)
	minutes := int(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
