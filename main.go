// Package main is the entry point for the annexctl CLI.
//
// The CLI provisions, resizes, leases, and tears down a temporary
// elastic compute annex attached to a job-scheduling pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/poolworks/annexctl/pkg/annex"
	"github.com/poolworks/annexctl/pkg/logging"
	awsprovider "github.com/poolworks/annexctl/pkg/providers/aws"
)

// Exit codes, one per failure class, so operators can distinguish
// failure sites without parsing output text.
const (
	exitError        = 1
	exitArgument     = 2
	exitStaging      = 3
	exitProvisioning = 4
	exitCleanup      = 5
	exitInterrupt    = 130
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to its failure-class exit code.
func exitCode(err error) int {
	var cleanupErr *annex.CleanupError
	if errors.As(err, &cleanupErr) {
		return exitCleanup
	}
	switch annex.ErrorCategory(err) {
	case annex.CategoryArgument:
		return exitArgument
	case annex.CategoryStaging:
		return exitStaging
	case annex.CategoryProvisioning, annex.CategoryInventory:
		return exitProvisioning
	case annex.CategoryCleanup:
		return exitCleanup
	default:
		return exitError
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "up":
		return cmdUp(cmdArgs)
	case "delete":
		return cmdDelete(cmdArgs)
	case "status":
		return cmdStatus(cmdArgs)
	case "maintenance":
		return cmdMaintenance(cmdArgs)
	case "version":
		return cmdVersion()
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return annex.ErrArgument(fmt.Sprintf("unknown command: %s\nRun 'annexctl help' for usage", cmd))
	}
}

func printUsage() {
	fmt.Println(`annexctl - elastic compute annex lifecycle management

Usage:
  annexctl <command> [options]

Commands:
  up           Create the annex if absent, then apply size and lease changes
  delete       Delete the annex stack
  status       Show the annex and its resource pools
  maintenance  Retry deletion of stacks stuck in a failed-deletion state
  version      Show version information
  help         Show this help message

Up Options:
  --project <name>        Project identity (required)
  --central-manager <ad>  Central manager address the annex attaches to
                          (default: $ANNEX_CENTRAL_MANAGER)
  --size <n>              Desired total instance count
  --expiry <ts>           Lease expiry as RFC 3339 timestamp
  --keypair <name>        Keypair identity baked into the stack
  --region <region>       Provider region (default: ambient configuration)
  --network <id>          Network placement (default: resolved from inventory)
  --pool <image,type[,price]>
                          Add a resource pool (repeatable, up to 8);
                          omit for one pool built from inventory defaults
  --credential-file <p>   Credential material to stage (required on create)
  --config-file <p>       Optional config material to stage
  --log-level <level>     debug, info, warn, or error (default: info)

Delete / Status Options:
  --project <name>        Project identity (required)
  --central-manager <ad>  Central manager address
  --region <region>       Provider region
  --log-level <level>     Log level

Maintenance Options:
  --region <region>       Provider region
  --log-level <level>     Log level

Examples:
  # Create a 10-instance annex across three pools
  annexctl up --project lab-42 --central-manager cm.example.org \
    --size 10 \
    --pool ami-0abc,m5.large \
    --pool ami-0abc,m5.xlarge,0.20 \
    --pool ami-0def,c5.large \
    --credential-file ./pool-password

  # Shrink the same annex and shorten its lease
  annexctl up --project lab-42 --central-manager cm.example.org \
    --size 2 --expiry 2026-08-29T22:00:00Z

  # Tear it down
  annexctl delete --project lab-42 --central-manager cm.example.org`)
}

// Options shared by every command.
type commonOpts struct {
	project        string
	centralManager string
	region         string
	logLevel       string
}

type upOpts struct {
	commonOpts

	size           int
	expiry         time.Time
	keypair        string
	network        string
	pools          []annex.PoolSpec
	credentialFile string
	configFile     string
}

func parseUpOpts(args []string) (*upOpts, error) {
	opts := &upOpts{
		commonOpts: commonOpts{
			centralManager: os.Getenv("ANNEX_CENTRAL_MANAGER"),
		},
		size: annex.SizeUnchanged,
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--project":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--project requires an argument")
			}
			opts.project = args[i+1]
			i++
		case "--central-manager":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--central-manager requires an argument")
			}
			opts.centralManager = args[i+1]
			i++
		case "--size":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--size requires an argument")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 0 {
				return nil, annex.ErrArgument("--size must be a non-negative integer")
			}
			opts.size = n
			i++
		case "--expiry":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--expiry requires an argument")
			}
			ts, err := time.Parse(time.RFC3339, args[i+1])
			if err != nil {
				return nil, annex.ErrArgument("--expiry must be an RFC 3339 timestamp").WithCause(err)
			}
			opts.expiry = ts
			i++
		case "--keypair":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--keypair requires an argument")
			}
			opts.keypair = args[i+1]
			i++
		case "--region":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--region requires an argument")
			}
			opts.region = args[i+1]
			i++
		case "--network":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--network requires an argument")
			}
			opts.network = args[i+1]
			i++
		case "--pool":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--pool requires an argument")
			}
			pool, err := parsePoolSpec(args[i+1])
			if err != nil {
				return nil, err
			}
			opts.pools = append(opts.pools, pool)
			i++
		case "--credential-file":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--credential-file requires a path argument")
			}
			opts.credentialFile = args[i+1]
			i++
		case "--config-file":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--config-file requires a path argument")
			}
			opts.configFile = args[i+1]
			i++
		case "--log-level":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--log-level requires an argument")
			}
			opts.logLevel = args[i+1]
			i++
		default:
			return nil, annex.ErrArgument("unknown option: " + args[i])
		}
	}

	if opts.project == "" {
		return nil, annex.ErrArgument("--project is required")
	}
	if opts.centralManager == "" {
		return nil, annex.ErrArgument("--central-manager is required (or set ANNEX_CENTRAL_MANAGER)")
	}
	if len(opts.pools) > annex.MaxResourcePools {
		return nil, annex.ErrArgument(fmt.Sprintf("at most %d --pool options are supported", annex.MaxResourcePools))
	}
	return opts, nil
}

func parsePoolSpec(arg string) (annex.PoolSpec, error) {
	parts := strings.Split(arg, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return annex.PoolSpec{}, annex.ErrArgument("--pool expects image,type[,price]: " + arg)
	}
	pool := annex.PoolSpec{
		ImageID:      strings.TrimSpace(parts[0]),
		InstanceType: strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		pool.SpotPrice = strings.TrimSpace(parts[2])
	}
	return pool, nil
}

func cmdUp(args []string) error {
	opts, err := parseUpOpts(args)
	if err != nil {
		return err
	}

	log, err := logging.New(opts.logLevel)
	if err != nil {
		return annex.ErrArgument(err.Error())
	}
	defer log.Sync()

	var credential, configBlob []byte
	if opts.credentialFile != "" {
		credential, err = os.ReadFile(opts.credentialFile)
		if err != nil {
			return annex.ErrArgument("failed to read credential file").WithCause(err)
		}
	}
	if opts.configFile != "" {
		configBlob, err = os.ReadFile(opts.configFile)
		if err != nil {
			return annex.ErrArgument("failed to read config file").WithCause(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl, err := newController(ctx, opts.region, log)
	if err != nil {
		return err
	}

	// Interrupt and early-error exits share the same teardown; the
	// one-shot guard inside makes whichever fires second a no-op.
	installTeardownHandler(cancel, ctl, log)
	defer func() {
		if terr := ctl.Teardown(context.Background()); terr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", terr)
		}
	}()

	result, err := ctl.Up(ctx, annex.UpRequest{
		Project:        opts.project,
		CentralManager: opts.centralManager,
		KeypairName:    opts.keypair,
		Size:           opts.size,
		ExpiresAt:      opts.expiry,
		NetworkID:      opts.network,
		Pools:          opts.pools,
		Credential:     credential,
		Config:         configBlob,
	})
	if err != nil {
		return err
	}

	printAnnex(result)
	return nil
}

// installTeardownHandler wires SIGINT/SIGTERM to the controller's
// compensating teardown and a distinct exit code.
func installTeardownHandler(cancel context.CancelFunc, ctl *annex.Controller, log *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("interrupt received; unwinding staged resources")
		cancel()
		if err := ctl.Teardown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitCleanup)
		}
		os.Exit(exitInterrupt)
	}()
}

func parseCommonOpts(args []string) (*commonOpts, error) {
	opts := &commonOpts{
		centralManager: os.Getenv("ANNEX_CENTRAL_MANAGER"),
	}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--project":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--project requires an argument")
			}
			opts.project = args[i+1]
			i++
		case "--central-manager":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--central-manager requires an argument")
			}
			opts.centralManager = args[i+1]
			i++
		case "--region":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--region requires an argument")
			}
			opts.region = args[i+1]
			i++
		case "--log-level":
			if i+1 >= len(args) {
				return nil, annex.ErrArgument("--log-level requires an argument")
			}
			opts.logLevel = args[i+1]
			i++
		default:
			return nil, annex.ErrArgument("unknown option: " + args[i])
		}
	}
	return opts, nil
}

func requireIdentity(opts *commonOpts) error {
	if opts.project == "" {
		return annex.ErrArgument("--project is required")
	}
	if opts.centralManager == "" {
		return annex.ErrArgument("--central-manager is required (or set ANNEX_CENTRAL_MANAGER)")
	}
	return nil
}

func cmdDelete(args []string) error {
	opts, err := parseCommonOpts(args)
	if err != nil {
		return err
	}
	if err := requireIdentity(opts); err != nil {
		return err
	}

	log, err := logging.New(opts.logLevel)
	if err != nil {
		return annex.ErrArgument(err.Error())
	}
	defer log.Sync()

	ctx := context.Background()
	ctl, err := newController(ctx, opts.region, log)
	if err != nil {
		return err
	}

	if err := ctl.Delete(ctx, opts.project, opts.centralManager); err != nil {
		return err
	}
	fmt.Printf("Requested deletion of annex %s\n", annex.DeriveName(opts.centralManager, opts.project))
	return nil
}

func cmdStatus(args []string) error {
	opts, err := parseCommonOpts(args)
	if err != nil {
		return err
	}
	if err := requireIdentity(opts); err != nil {
		return err
	}

	log, err := logging.New(opts.logLevel)
	if err != nil {
		return annex.ErrArgument(err.Error())
	}
	defer log.Sync()

	ctx := context.Background()
	ctl, err := newController(ctx, opts.region, log)
	if err != nil {
		return err
	}

	result, err := ctl.Status(ctx, opts.project, opts.centralManager)
	if err != nil {
		return err
	}
	printAnnex(result)
	return nil
}

func cmdMaintenance(args []string) error {
	opts, err := parseCommonOpts(args)
	if err != nil {
		return err
	}

	log, err := logging.New(opts.logLevel)
	if err != nil {
		return annex.ErrArgument(err.Error())
	}
	defer log.Sync()

	ctx := context.Background()
	ctl, err := newController(ctx, opts.region, log)
	if err != nil {
		return err
	}

	retried, err := ctl.Maintenance(ctx)
	if err != nil {
		return err
	}
	if len(retried) == 0 {
		fmt.Println("No stacks in failed-deletion state")
		return nil
	}
	fmt.Printf("Retried deletion of %d stack(s):\n", len(retried))
	for _, name := range retried {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func cmdVersion() error {
	fmt.Println("annexctl version 0.3.0")
	return nil
}

func newController(ctx context.Context, region string, log *zap.Logger) (*annex.Controller, error) {
	var providerOpts []awsprovider.ProviderOption
	if region != "" {
		providerOpts = append(providerOpts, awsprovider.WithRegion(region))
	}
	provider, err := awsprovider.New(ctx, providerOpts...)
	if err != nil {
		return nil, annex.ErrArgument("failed to initialize AWS provider").WithCause(err)
	}

	// Preflight: resolve credentials before any mutation.
	if _, err := provider.AccountID(ctx); err != nil {
		return nil, annex.ErrArgument("AWS credentials did not resolve").WithCause(err)
	}

	return annex.NewController(
		annex.WithStackClient(provider.Stacks()),
		annex.WithPoolClient(provider.Pools()),
		annex.WithObjectStore(provider.Storage()),
		annex.WithMetricsClient(provider.Metrics()),
		annex.WithInventoryClient(provider.Inventory()),
		annex.WithLogger(log),
	), nil
}

func printAnnex(a *annex.Annex) {
	fmt.Println("=== Annex ===")
	fmt.Printf("Name: %s\n", a.Name)
	fmt.Printf("State: %s\n", a.State)
	if a.StackID != "" {
		fmt.Printf("Stack: %s\n", a.StackID)
	}
	fmt.Printf("Desired size: %d\n", a.DesiredSize)
	if a.LeaseMinutes > 0 {
		fmt.Printf("Lease: %d minutes\n", a.LeaseMinutes)
	}
	if len(a.Pools) > 0 {
		fmt.Println("\nPools:")
		fmt.Printf("  %-4s %-30s %-14s %-8s %s\n", "ORD", "GROUP", "TYPE", "DESIRED", "OBSERVED")
		for _, p := range a.Pools {
			fmt.Printf("  %-4d %-30s %-14s %-8d %d\n",
				p.Ordinal, truncate(p.GroupID, 30), p.InstanceType, p.DesiredCapacity, p.ObservedCount)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
