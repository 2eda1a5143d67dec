// Package aws implements the annex client interfaces on AWS:
// CloudFormation for orchestration stacks, Auto Scaling for resource
// pools, S3 for secret staging, CloudWatch for the lease heartbeat and
// EC2 for inventory lookups.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Provider bundles the AWS service clients behind the annex client
// interfaces.
type Provider struct {
	region string

	cfn     *cloudformation.Client
	asg     *autoscaling.Client
	storage *s3.Client
	compute *ec2.Client
	watch   *cloudwatch.Client
	ident   *sts.Client
}

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithRegion overrides the region from the ambient AWS configuration.
func WithRegion(region string) ProviderOption {
	return func(p *Provider) { p.region = region }
}

// New creates a Provider from the ambient AWS configuration
// (environment, shared config, instance role).
func New(ctx context.Context, opts ...ProviderOption) (*Provider, error) {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}

	var loadOpts []func(*config.LoadOptions) error
	if p.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(p.region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	if p.region == "" {
		p.region = cfg.Region
	}

	p.cfn = cloudformation.NewFromConfig(cfg)
	p.asg = autoscaling.NewFromConfig(cfg)
	p.storage = s3.NewFromConfig(cfg)
	p.compute = ec2.NewFromConfig(cfg)
	p.watch = cloudwatch.NewFromConfig(cfg)
	p.ident = sts.NewFromConfig(cfg)
	return p, nil
}

// Region returns the resolved region.
func (p *Provider) Region() string {
	return p.region
}

// AccountID returns the calling account's ID. Used as a preflight
// check that credentials resolve before any mutation is attempted.
func (p *Provider) AccountID(ctx context.Context) (string, error) {
	out, err := p.ident.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	return awssdk.ToString(out.Account), nil
}

// Stacks returns the StackClient implementation.
func (p *Provider) Stacks() *StackService {
	return &StackService{client: p.cfn}
}

// Pools returns the PoolClient implementation.
func (p *Provider) Pools() *PoolService {
	return &PoolService{client: p.asg}
}

// Storage returns the ObjectStore implementation.
func (p *Provider) Storage() *StorageService {
	return &StorageService{client: p.storage, region: p.region}
}

// Metrics returns the MetricsClient implementation.
func (p *Provider) Metrics() *MetricService {
	return &MetricService{client: p.watch}
}

// Inventory returns the InventoryClient implementation.
func (p *Provider) Inventory() *InventoryService {
	return &InventoryService{client: p.compute}
}
