package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const maxDatumsPerCall = 20

type cloudWatchAPI interface {
	PutMetricData(
		ctx context.Context,
		params *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options),
	) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher writes records with PutMetricData, one call per namespace batch.
type CloudWatchPublisher struct {
	client    cloudWatchAPI
	namespace string
}

var _ Publisher = (*CloudWatchPublisher)(nil)

// NewCloudWatchPublisher uses namespace for records that do not carry their own.
func NewCloudWatchPublisher(client cloudWatchAPI, namespace string) *CloudWatchPublisher {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "MusicAPI"
	}
	return &CloudWatchPublisher{client: client, namespace: namespace}
}

func (p *CloudWatchPublisher) Publish(ctx context.Context, records []MetricRecord) error {
	if p == nil || p.client == nil {
		return errors.New("metrics: cloudwatch client is nil")
	}
	if len(records) == 0 {
		return nil
	}

	byNamespace := map[string][]types.MetricDatum{}
	for _, r := range records {
		ns := r.Namespace
		if ns == "" {
			ns = p.namespace
		}
		byNamespace[ns] = append(byNamespace[ns], toDatum(r))
	}

	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var errs []error
	for _, ns := range namespaces {
		data := byNamespace[ns]
		for start := 0; start < len(data); start += maxDatumsPerCall {
			end := min(start+maxDatumsPerCall, len(data))
			_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
				Namespace:  aws.String(ns),
				MetricData: data[start:end],
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("put metric data %s: %w", ns, err))
			}
		}
	}
	return errors.Join(errs...)
}

func toDatum(r MetricRecord) types.MetricDatum {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	unit := types.StandardUnitCount
	if r.Unit != "" {
		unit = types.StandardUnit(r.Unit)
	}

	keys := make([]string, 0, len(r.Tags))
	for k := range r.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dims := make([]types.Dimension, 0, len(keys))
	for _, k := range keys {
		dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(r.Tags[k])})
	}

	return types.MetricDatum{
		MetricName: aws.String(r.Name),
		Value:      aws.Float64(r.Value),
		Unit:       unit,
		Timestamp:  aws.Time(ts),
		Dimensions: dims,
	}
}
