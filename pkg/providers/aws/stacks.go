package aws

import (
	"context"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/poolworks/annexctl/pkg/annex"
)

// StackService implements annex.StackClient on CloudFormation.
type StackService struct {
	client *cloudformation.Client
}

// CreateStack implements annex.StackClient.
func (s *StackService) CreateStack(ctx context.Context, spec *annex.StackSpec) (string, error) {
	out, err := s.client.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:          awssdk.String(spec.Name),
		TemplateURL:        awssdk.String(spec.TemplateURL),
		Parameters:         toParameters(annex.BuildCreateParams(spec)),
		ClientRequestToken: awssdk.String(spec.RequestToken),
		Capabilities:       []cfntypes.Capability{cfntypes.CapabilityCapabilityIam},
		OnFailure:          cfntypes.OnFailureDelete,
	})
	if err != nil {
		return "", classify(err, "stack", spec.Name)
	}
	return awssdk.ToString(out.StackId), nil
}

// DescribeStack implements annex.StackClient. Resource-pool group IDs
// are read from the stack's resources, ordered by logical ID so the
// template's pool ordinals are preserved.
func (s *StackService) DescribeStack(ctx context.Context, name string) (*annex.StackStatus, error) {
	out, err := s.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: awssdk.String(name),
	})
	if err != nil {
		return nil, classify(err, "stack", name)
	}
	if len(out.Stacks) == 0 {
		return nil, annex.ErrNotFound("stack", name)
	}
	stack := out.Stacks[0]

	status := &annex.StackStatus{
		StackID: awssdk.ToString(stack.StackId),
		Status:  string(stack.StackStatus),
		State:   stateFromStackStatus(stack.StackStatus),
	}

	res, err := s.client.DescribeStackResources(ctx, &cloudformation.DescribeStackResourcesInput{
		StackName: awssdk.String(name),
	})
	if err != nil {
		return nil, classify(err, "stack", name)
	}

	type group struct{ logical, physical string }
	var groups []group
	for _, r := range res.StackResources {
		if awssdk.ToString(r.ResourceType) != "AWS::AutoScaling::AutoScalingGroup" {
			continue
		}
		if r.PhysicalResourceId == nil {
			continue
		}
		groups = append(groups, group{
			logical:  awssdk.ToString(r.LogicalResourceId),
			physical: awssdk.ToString(r.PhysicalResourceId),
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].logical < groups[j].logical })
	for _, g := range groups {
		status.PoolGroupIDs = append(status.PoolGroupIDs, g.physical)
	}
	return status, nil
}

// UpdateStackParameters implements annex.StackClient as a
// full-restatement update against the previous template.
func (s *StackService) UpdateStackParameters(ctx context.Context, name string, params []annex.Param) error {
	_, err := s.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:           awssdk.String(name),
		UsePreviousTemplate: awssdk.Bool(true),
		Parameters:          toParameters(params),
		Capabilities:        []cfntypes.Capability{cfntypes.CapabilityCapabilityIam},
	})
	if err != nil {
		return classify(err, "stack", name)
	}
	return nil
}

// DeleteStack implements annex.StackClient. Deleting an absent stack
// succeeds.
func (s *StackService) DeleteStack(ctx context.Context, name string) error {
	_, err := s.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: awssdk.String(name),
	})
	if err != nil {
		cerr := classify(err, "stack", name)
		if annex.IsCategory(cerr, annex.CategoryNotFound) {
			return nil
		}
		return cerr
	}
	return nil
}

// ListFailedDeletions implements annex.StackClient.
func (s *StackService) ListFailedDeletions(ctx context.Context) ([]string, error) {
	var names []string
	var next *string
	for {
		out, err := s.client.ListStacks(ctx, &cloudformation.ListStacksInput{
			StackStatusFilter: []cfntypes.StackStatus{cfntypes.StackStatusDeleteFailed},
			NextToken:         next,
		})
		if err != nil {
			return nil, classify(err, "stack", "")
		}
		for _, summary := range out.StackSummaries {
			names = append(names, awssdk.ToString(summary.StackName))
		}
		if out.NextToken == nil {
			return names, nil
		}
		next = out.NextToken
	}
}

func toParameters(params []annex.Param) []cfntypes.Parameter {
	out := make([]cfntypes.Parameter, 0, len(params))
	for _, p := range params {
		param := cfntypes.Parameter{ParameterKey: awssdk.String(p.Key)}
		if p.UsePrevious {
			param.UsePreviousValue = awssdk.Bool(true)
		} else {
			param.ParameterValue = awssdk.String(p.Value)
		}
		out = append(out, param)
	}
	return out
}

func stateFromStackStatus(status cfntypes.StackStatus) annex.State {
	switch status {
	case cfntypes.StackStatusCreateInProgress, cfntypes.StackStatusReviewInProgress:
		return annex.StateCreating
	case cfntypes.StackStatusUpdateInProgress,
		cfntypes.StackStatusUpdateCompleteCleanupInProgress,
		cfntypes.StackStatusUpdateRollbackInProgress:
		return annex.StateUpdating
	case cfntypes.StackStatusCreateComplete,
		cfntypes.StackStatusUpdateComplete,
		cfntypes.StackStatusUpdateRollbackComplete:
		return annex.StateActive
	default:
		return annex.StateAbsent
	}
}
