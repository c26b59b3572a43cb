package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI is the CloudWatch call used to read usage metrics.
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// MetricQuery identifies a usage metric.
type MetricQuery struct {
	Namespace  string
	MetricName string
	Dimensions map[string]string
	Statistic  string
}

const (
	metricWindow = 24 * time.Hour
	metricPeriod = 300
)

// latestMetric returns the newest datapoint of q over the last day. ok is
// false when there are no datapoints.
func latestMetric(ctx context.Context, client CloudWatchAPI, q MetricQuery, now time.Time) (value float64, ok bool, err error) {
	stat := q.Statistic
	if stat == "" {
		stat = "Maximum"
	}
	start := now.Add(-metricWindow)

	result, err := client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(q.Namespace),
		MetricName: aws.String(q.MetricName),
		Dimensions: buildDimensions(q.Dimensions),
		StartTime:  &start,
		EndTime:    &now,
		Period:     aws.Int32(metricPeriod),
		Statistics: []cwtypes.Statistic{cwtypes.Statistic(stat)},
	})
	if err != nil {
		return 0, false, err
	}

	latest := findLatestDatapoint(result.Datapoints)
	if latest == nil {
		return 0, false, nil
	}
	return extractValue(latest, stat), true, nil
}

func buildDimensions(dims map[string]string) []cwtypes.Dimension {
	dimensions := make([]cwtypes.Dimension, 0, len(dims))
	for key, value := range dims {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	}
	return dimensions
}

func findLatestDatapoint(datapoints []cwtypes.Datapoint) *cwtypes.Datapoint {
	var latest *cwtypes.Datapoint
	for i := range datapoints {
		if datapoints[i].Timestamp == nil {
			continue
		}
		if latest == nil || datapoints[i].Timestamp.After(*latest.Timestamp) {
			latest = &datapoints[i]
		}
	}
	return latest
}

func extractValue(dp *cwtypes.Datapoint, stat string) float64 {
	var v *float64
	switch stat {
	case "Average":
		v = dp.Average
	case "Sum":
		v = dp.Sum
	case "Minimum":
		v = dp.Minimum
	default:
		v = dp.Maximum
	}
	return aws.ToFloat64(v)
}
