package aws

import (
	"context"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// defaultImageTag marks machine images published for annex workers.
const defaultImageTag = "annex:worker"

// InventoryService implements annex.InventoryClient on EC2.
type InventoryService struct {
	client *ec2.Client
}

// DefaultNetworks implements annex.InventoryClient. It returns the
// account's default VPCs.
func (s *InventoryService) DefaultNetworks(ctx context.Context) ([]string, error) {
	out, err := s.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{{
			Name:   awssdk.String("is-default"),
			Values: []string{"true"},
		}},
	})
	if err != nil {
		return nil, classify(err, "network", "")
	}

	var ids []string
	for _, vpc := range out.Vpcs {
		ids = append(ids, awssdk.ToString(vpc.VpcId))
	}
	sort.Strings(ids)
	return ids, nil
}

// SubnetsForNetwork implements annex.InventoryClient.
func (s *InventoryService) SubnetsForNetwork(ctx context.Context, networkID string) ([]string, error) {
	out, err := s.client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{{
			Name:   awssdk.String("vpc-id"),
			Values: []string{networkID},
		}},
	})
	if err != nil {
		return nil, classify(err, "network", networkID)
	}

	var ids []string
	for _, subnet := range out.Subnets {
		ids = append(ids, awssdk.ToString(subnet.SubnetId))
	}
	sort.Strings(ids)
	return ids, nil
}

// DefaultImages implements annex.InventoryClient. Candidates are the
// account's images carrying the worker tag, newest name first so the
// first pick is deterministic.
func (s *InventoryService) DefaultImages(ctx context.Context) ([]string, error) {
	out, err := s.client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
		Filters: []ec2types.Filter{{
			Name:   awssdk.String("tag-key"),
			Values: []string{defaultImageTag},
		}},
	})
	if err != nil {
		return nil, classify(err, "image", "")
	}

	images := append([]ec2types.Image(nil), out.Images...)
	sort.Slice(images, func(i, j int) bool {
		return awssdk.ToString(images[i].Name) > awssdk.ToString(images[j].Name)
	})

	var ids []string
	for _, img := range images {
		ids = append(ids, awssdk.ToString(img.ImageId))
	}
	return ids, nil
}
