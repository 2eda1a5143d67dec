package aws

import (
	"context"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric identity for lease heartbeats. The lease alarm created by the
// orchestration template watches exactly this series.
const (
	heartbeatNamespace = "Annex"
	heartbeatMetric    = "Heartbeat"
	heartbeatDimension = "AnnexName"
)

// MetricService implements annex.MetricsClient on CloudWatch.
type MetricService struct {
	client *cloudwatch.Client
}

// EmitHeartbeat implements annex.MetricsClient.
func (s *MetricService) EmitHeartbeat(ctx context.Context, annexName string, at time.Time) error {
	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awssdk.String(heartbeatNamespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: awssdk.String(heartbeatMetric),
			Timestamp:  awssdk.Time(at),
			Value:      awssdk.Float64(1),
			Dimensions: []cwtypes.Dimension{{
				Name:  awssdk.String(heartbeatDimension),
				Value: awssdk.String(annexName),
			}},
		}},
	})
	if err != nil {
		return classify(err, "metric", annexName)
	}
	return nil
}

// HeartbeatSamples implements annex.MetricsClient. It aggregates the
// sample count over the window; a freshly emitted datapoint may take
// several queries to appear.
func (s *MetricService) HeartbeatSamples(ctx context.Context, annexName string, windowStart, windowEnd time.Time) (int, error) {
	out, err := s.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  awssdk.String(heartbeatNamespace),
		MetricName: awssdk.String(heartbeatMetric),
		StartTime:  awssdk.Time(windowStart),
		EndTime:    awssdk.Time(windowEnd),
		Period:     awssdk.Int32(60),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticSampleCount},
		Dimensions: []cwtypes.Dimension{{
			Name:  awssdk.String(heartbeatDimension),
			Value: awssdk.String(annexName),
		}},
	})
	if err != nil {
		return 0, classify(err, "metric", annexName)
	}

	samples := 0
	for _, dp := range out.Datapoints {
		samples += int(awssdk.ToFloat64(dp.SampleCount))
	}
	return samples, nil
}
