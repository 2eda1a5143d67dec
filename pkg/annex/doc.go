// Package annex provides lifecycle management for a leased elastic
// compute annex backed by a remote infrastructure-orchestration stack.
//
// # Overview
//
// An annex is a temporary fleet of compute instances that attaches to a
// job-scheduling pool and exists only while its lease is alive. The
// controller in this package provisions the annex as a single
// orchestration stack, resizes it by distributing capacity across its
// resource pools, renews its lease with a heartbeat-confirmed update,
// and tears it down again.
//
// # Core Concepts
//
// ## Controller
//
// The Controller is the entry point. One Controller invocation manages
// exactly one annex, synchronously: every remote operation is a
// blocking round-trip and eventual consistency on the remote side is
// observed purely by polling.
//
// ## Staging ledger
//
// Before the stack exists, the controller stages ephemeral credential
// and config material into a private storage container. The
// SecretStager records which of (container, credential object, config
// object) it currently owns; ownership transfers to the annex itself
// at the instant stack creation succeeds. Until that instant, any
// failure or interrupt unwinds the staged material in strict reverse
// order.
//
// ## Convergence polling
//
// The remote service converges asynchronously. The Poller blocks on a
// predicate over freshly fetched remote state at a fixed interval,
// logging progress only when the observed value changes.
//
// ## Lease renewal
//
// Shortening a lease is only safe once the monitoring system has
// provably observed fresh activity, otherwise a stale alarm could fire
// immediately after the update. The LeaseRenewer emits a heartbeat,
// polls until the datapoint is visible in aggregation, and only then
// submits the duration update.
//
// # Usage
//
//	ctl := annex.NewController(
//	    annex.WithClients(stacks, pools, store, metrics, inventory),
//	    annex.WithLogger(log),
//	)
//
//	result, err := ctl.Up(ctx, annex.UpRequest{
//	    Project:        "lab-42",
//	    CentralManager: "cm.example.org",
//	    Size:           10,
//	})
//
// # Extension
//
// Remote services are abstracted behind the narrow client interfaces
// in interfaces.go; pkg/providers/aws implements them on AWS
// CloudFormation, Auto Scaling, S3, EC2 and CloudWatch.
package annex
