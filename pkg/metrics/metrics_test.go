package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (f *fakeCloudWatch) PutMetricData(
	_ context.Context,
	params *cloudwatch.PutMetricDataInput,
	_ ...func(*cloudwatch.Options),
) (*cloudwatch.PutMetricDataOutput, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchPublisher_GroupsByNamespaceAndBatches(t *testing.T) {
	client := &fakeCloudWatch{}
	pub := NewCloudWatchPublisher(client, "")

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]MetricRecord, 0, 25)
	for i := 0; i < 25; i++ {
		records = append(records, MetricRecord{Name: fmt.Sprintf("M%d", i), Value: 1, Timestamp: ts})
	}
	records = append(records, MetricRecord{
		Namespace: "FrontendRouter",
		Name:      "RouteRandomized",
		Value:     1,
		Unit:      "Count",
		Tags:      map[string]string{"Version": "/react", "Service": "frontend-router"},
	})

	require.NoError(t, pub.Publish(context.Background(), records))
	require.Len(t, client.calls, 3)

	require.Equal(t, "FrontendRouter", aws.ToString(client.calls[0].Namespace))
	datum := client.calls[0].MetricData[0]
	require.Equal(t, "RouteRandomized", aws.ToString(datum.MetricName))
	require.Equal(t, types.StandardUnitCount, datum.Unit)
	require.Len(t, datum.Dimensions, 2)
	require.Equal(t, "Service", aws.ToString(datum.Dimensions[0].Name))

	require.Equal(t, "MusicAPI", aws.ToString(client.calls[1].Namespace))
	require.Len(t, client.calls[1].MetricData, 20)
	require.Len(t, client.calls[2].MetricData, 5)
	require.Equal(t, ts, aws.ToTime(client.calls[1].MetricData[0].Timestamp))
}

func TestCloudWatchPublisher_Errors(t *testing.T) {
	require.Error(t, (*CloudWatchPublisher)(nil).Publish(context.Background(), nil))

	client := &fakeCloudWatch{err: errors.New("throttled")}
	pub := NewCloudWatchPublisher(client, "MusicAPI")
	require.NoError(t, pub.Publish(context.Background(), nil))
	require.ErrorContains(t, pub.Publish(context.Background(), []MetricRecord{{Name: "X", Value: 1}}), "throttled")
}

func TestMemoryPublisher(t *testing.T) {
	pub := NewMemoryPublisher()
	require.NoError(t, pub.Publish(context.Background(), []MetricRecord{{Name: "A", Value: 1}, {Name: "A", Value: 2}, {Name: "B", Value: 1}}))
	require.EqualValues(t, 3, pub.Sum("A"))
	require.Len(t, pub.Records(), 3)

	pub.FailWith(errors.New("down"))
	require.Error(t, pub.Publish(context.Background(), nil))
	require.NoError(t, NopPublisher{}.Publish(context.Background(), nil))
}
