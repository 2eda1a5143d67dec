package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"github.com/poolworks/annexctl/pkg/annex"
)

// PoolService implements annex.PoolClient on Auto Scaling groups.
type PoolService struct {
	client *autoscaling.Client
}

// DescribePools implements annex.PoolClient. Observations are returned
// in the order groupIDs were given.
func (s *PoolService) DescribePools(ctx context.Context, groupIDs []string) ([]annex.PoolObservation, error) {
	out, err := s.client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: groupIDs,
	})
	if err != nil {
		return nil, classify(err, "pool", "")
	}

	byName := make(map[string]asgtypes.AutoScalingGroup, len(out.AutoScalingGroups))
	for _, g := range out.AutoScalingGroups {
		byName[awssdk.ToString(g.AutoScalingGroupName)] = g
	}

	obs := make([]annex.PoolObservation, 0, len(groupIDs))
	for _, id := range groupIDs {
		o := annex.PoolObservation{GroupID: id}
		if g, ok := byName[id]; ok {
			o.Desired = int(awssdk.ToInt32(g.DesiredCapacity))
			for _, inst := range g.Instances {
				if inst.LifecycleState == asgtypes.LifecycleStateInService {
					o.InService++
				}
			}
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// SetPoolCapacity implements annex.PoolClient. Desired and maximum are
// always set together to the same value.
func (s *PoolService) SetPoolCapacity(ctx context.Context, groupID string, capacity int) error {
	_, err := s.client.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: awssdk.String(groupID),
		DesiredCapacity:      awssdk.Int32(int32(capacity)),
		MaxSize:              awssdk.Int32(int32(capacity)),
		MinSize:              awssdk.Int32(0),
	})
	if err != nil {
		return classify(err, "pool", groupID)
	}
	return nil
}
