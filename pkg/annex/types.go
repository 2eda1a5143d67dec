// Package annex provides core types for annex lifecycle management.
package annex

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// State describes the lifecycle state of an annex as observed on the
// remote orchestration service.
type State string

const (
	// StateAbsent means no stack exists for the annex name.
	StateAbsent State = "absent"
	// StateCreating means the stack exists but has not finished
	// converging to its initial configuration.
	StateCreating State = "creating"
	// StateActive means the stack is converged and serving.
	StateActive State = "active"
	// StateUpdating means a parameter update or resize is in flight.
	StateUpdating State = "updating"
)

// MaxResourcePools is the hard cap on resource pools per annex. The
// orchestration template carries exactly this many indexed pool
// parameter slots.
const MaxResourcePools = 8

// DefaultLeaseMinutes is the lease duration used when the caller does
// not supply an expiry.
const DefaultLeaseMinutes = 180

// Annex is the leased elastic compute fleet managed by the controller.
type Annex struct {
	// Name is derived from the central-manager address and project
	// identity; see DeriveName.
	Name string

	// StackID is the remote orchestration stack identifier.
	StackID string

	// DesiredSize is the requested total instance count across all
	// resource pools.
	DesiredSize int

	// LeaseMinutes is the current lease duration.
	LeaseMinutes int

	// ExpiresAt is the lease expiry instant, when known.
	ExpiresAt time.Time

	// State is the observed lifecycle state.
	State State

	// Pools are the annex's resource pools in ordinal order.
	Pools []ResourcePool
}

// ResourcePool is one homogeneous, independently scalable group of
// instances within an annex. Composition (image, instance type, price
// ceiling) is fixed at creation; only capacity changes afterwards.
type ResourcePool struct {
	// Ordinal is the pool's position within the annex, starting at 0.
	Ordinal int

	// GroupID is the remote scaling-group identifier backing the pool.
	GroupID string

	// ImageID is the machine image the pool launches.
	ImageID string

	// InstanceType is the instance type the pool launches.
	InstanceType string

	// SpotPrice is an optional price ceiling; empty means on-demand.
	SpotPrice string

	// DesiredCapacity is the requested instance count.
	DesiredCapacity int

	// ObservedCount is the instance count last observed on the remote
	// service.
	ObservedCount int
}

// PoolSpec describes one resource pool at annex creation time.
type PoolSpec struct {
	ImageID      string `json:"image_id"`
	InstanceType string `json:"instance_type"`
	// SpotPrice is an optional price ceiling; empty requests on-demand
	// capacity.
	SpotPrice string `json:"spot_price,omitempty"`
}

// Param is one stack parameter in a full-restatement update. The
// remote API requires every parameter to be resolved on update, so a
// parameter is either set to a new value or explicitly marked as
// keeping its previous one.
type Param struct {
	Key string
	// Value is the new value; ignored when UsePrevious is set.
	Value string
	// UsePrevious marks the parameter as unchanged.
	UsePrevious bool
}

// SetParam returns a Param carrying a new value.
func SetParam(key, value string) Param {
	return Param{Key: key, Value: value}
}

// KeepParam returns a Param marked as keeping its previous value.
func KeepParam(key string) Param {
	return Param{Key: key, UsePrevious: true}
}

// StackSpec is the complete parameter record for a stack creation.
// Staged-secret locations are present only when this invocation staged
// them.
type StackSpec struct {
	Name        string
	TemplateURL string

	CentralManager string
	KeypairName    string
	LeaseMinutes   int
	TotalSize      int
	Project        string

	// CredentialLocation and ConfigLocation point at staged secret
	// objects; ConfigLocation may be empty.
	CredentialLocation string
	ConfigLocation     string

	NetworkID string
	SubnetIDs []string

	// Pools holds at most MaxResourcePools entries, in ordinal order.
	Pools []PoolSpec

	// RequestToken makes the create call idempotent on the remote
	// side.
	RequestToken string
}

// Validate checks the spec before submission.
func (s *StackSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stack name is required")
	}
	if s.CentralManager == "" {
		return fmt.Errorf("central manager address is required")
	}
	if s.Project == "" {
		return fmt.Errorf("project identity is required")
	}
	if s.TotalSize < 0 {
		return fmt.Errorf("total size must be non-negative, got %d", s.TotalSize)
	}
	if len(s.Pools) == 0 {
		return fmt.Errorf("at least one resource pool is required")
	}
	if len(s.Pools) > MaxResourcePools {
		return fmt.Errorf("at most %d resource pools are supported, got %d", MaxResourcePools, len(s.Pools))
	}
	for i, p := range s.Pools {
		if p.ImageID == "" {
			return fmt.Errorf("pool %d: image id is required", i)
		}
		if p.InstanceType == "" {
			return fmt.Errorf("pool %d: instance type is required", i)
		}
	}
	return nil
}

// StackStatus is the observed status of an orchestration stack.
type StackStatus struct {
	StackID string

	// Status is the raw remote status string.
	Status string

	// State is the lifecycle state the provider mapped Status to.
	State State

	// PoolGroupIDs are the scaling-group identifiers of the stack's
	// resource pools in ordinal order. May lag reality: a describe
	// issued immediately after create can miss just-created groups.
	PoolGroupIDs []string
}

// PoolObservation is the remote view of one resource pool.
type PoolObservation struct {
	GroupID   string
	Desired   int
	InService int
}

// StagedSecrets holds the object-store locations produced by staging.
type StagedSecrets struct {
	CredentialLocation string
	ConfigLocation     string
}

// StagingLedger records which destructive-cleanup-eligible resources
// the controller currently owns. Each flag independently gates the
// corresponding compensating delete.
type StagingLedger struct {
	ContainerCreated   bool
	CredentialUploaded bool
	ConfigUploaded     bool
}

// Empty reports whether the controller owns nothing.
func (l StagingLedger) Empty() bool {
	return !l.ContainerCreated && !l.CredentialUploaded && !l.ConfigUploaded
}

// DeriveName returns the annex name for a (central manager, project)
// pair. The derivation is deterministic so that repeated invocations
// address the same annex, and hashed so that arbitrary addresses and
// project names yield a valid stack name.
func DeriveName(centralManager, project string) string {
	sum := sha256.Sum256([]byte(centralManager + "\x00" + project))
	return "annex-" + hex.EncodeToString(sum[:])[:12]
}

// DeriveContainerName returns the staging container name for a
// (central manager, project) pair.
func DeriveContainerName(centralManager, project string) string {
	sum := sha256.Sum256([]byte(centralManager + "\x00" + project))
	return "annex-stage-" + hex.EncodeToString(sum[:])[:16]
}
