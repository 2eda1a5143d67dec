package annex

import (
	"context"
	"time"
)

// StackClient abstracts orchestration stack operations.
type StackClient interface {
	// CreateStack submits a stack creation and returns the stack ID.
	// It is called at most once per annex; idempotence on the remote
	// side is carried by spec.RequestToken.
	CreateStack(ctx context.Context, spec *StackSpec) (string, error)

	// DescribeStack returns the observed status of a stack, or an
	// error of CategoryNotFound when no such stack exists. The result
	// is eventually consistent: a describe issued immediately after
	// CreateStack may not reflect it yet.
	DescribeStack(ctx context.Context, name string) (*StackStatus, error)

	// UpdateStackParameters submits a full parameter restatement. The
	// remote API requires every template parameter to be resolved, so
	// params must cover the complete schema with unchanged entries
	// marked UsePrevious.
	UpdateStackParameters(ctx context.Context, name string, params []Param) error

	// DeleteStack requests stack deletion. Deleting an absent stack is
	// not an error.
	DeleteStack(ctx context.Context, name string) error

	// ListFailedDeletions returns the names of stacks stuck in the
	// terminal failed-deletion state.
	ListFailedDeletions(ctx context.Context) ([]string, error)
}

// PoolClient abstracts resource-pool (scaling group) operations.
type PoolClient interface {
	// DescribePools returns observations for the given groups, in the
	// same order.
	DescribePools(ctx context.Context, groupIDs []string) ([]PoolObservation, error)

	// SetPoolCapacity sets a pool's desired and maximum capacity to
	// the same value. No burst headroom is ever requested.
	SetPoolCapacity(ctx context.Context, groupID string, capacity int) error
}

// ObjectStore abstracts the provider-side object store used for secret
// staging.
type ObjectStore interface {
	// EnsureContainer creates a private container if absent and
	// reports whether this call created it.
	EnsureContainer(ctx context.Context, name string) (created bool, err error)

	// Put uploads an object and returns its location.
	Put(ctx context.Context, container, key string, body []byte) (location string, err error)

	// DeleteObject removes an object. Deleting an absent object is not
	// an error.
	DeleteObject(ctx context.Context, container, key string) error

	// DeleteContainer removes an empty container.
	DeleteContainer(ctx context.Context, container string) error
}

// MetricsClient abstracts the monitoring time series used by the lease
// protocol.
type MetricsClient interface {
	// EmitHeartbeat writes one liveness datapoint at the given instant
	// into the annex-scoped metric stream.
	EmitHeartbeat(ctx context.Context, annexName string, at time.Time) error

	// HeartbeatSamples returns the aggregated sample count over
	// [windowStart, windowEnd).
	HeartbeatSamples(ctx context.Context, annexName string, windowStart, windowEnd time.Time) (int, error)
}

// InventoryClient abstracts default region/network/image inventory
// lookups. Implementations return every candidate; the controller
// picks the first deterministically and warns when there was a choice.
type InventoryClient interface {
	// DefaultNetworks returns candidate default network IDs.
	DefaultNetworks(ctx context.Context) ([]string, error)

	// SubnetsForNetwork returns the subnet IDs of a network.
	SubnetsForNetwork(ctx context.Context, networkID string) ([]string, error)

	// DefaultImages returns candidate default machine image IDs.
	DefaultImages(ctx context.Context) ([]string, error)
}
