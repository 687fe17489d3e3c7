package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// MetricsClient runs metric queries against CloudWatch.
type MetricsClient struct {
	api cloudwatch.GetMetricDataAPIClient
}

func NewMetricsClient(api cloudwatch.GetMetricDataAPIClient) *MetricsClient {
	return &MetricsClient{api: api}
}

// GetMetricData pages through the results of queries over [start, end].
// Series split across pages are merged by query id, in the order the ids
// first appear.
func (c *MetricsClient) GetMetricData(ctx context.Context, start, end time.Time, queries []model.MetricQuery) ([]model.MetricDataPoint, error) {
	input := &cloudwatch.GetMetricDataInput{
		MetricDataQueries: toMetricDataQueries(queries),
		StartTime:         aws.Time(start),
		EndTime:           aws.Time(end),
		ScanBy:            cwtypes.ScanByTimestampAscending,
	}
	logging.Entry(ctx).Debugf("GetMetricData with %d queries from %s to %s", len(queries), start.Format(time.RFC3339), end.Format(time.RFC3339))

	var (
		order  []string
		merged = map[string]*model.MetricDataPoint{}
	)
	paginator := cloudwatch.NewGetMetricDataPaginator(c.api, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("get metric data: %w", err)
		}
		for _, r := range output.MetricDataResults {
			id := safeString(r.Id)
			point, ok := merged[id]
			if !ok {
				point = &model.MetricDataPoint{QueryID: id}
				merged[id] = point
				order = append(order, id)
			}
			point.Values = append(point.Values, r.Values...)
			point.Timestamps = append(point.Timestamps, r.Timestamps...)
		}
	}

	points := make([]model.MetricDataPoint, 0, len(order))
	for _, id := range order {
		points = append(points, *merged[id])
	}
	return points, nil
}

func toMetricDataQueries(queries []model.MetricQuery) []cwtypes.MetricDataQuery {
	out := make([]cwtypes.MetricDataQuery, 0, len(queries))
	for _, q := range queries {
		mdq := cwtypes.MetricDataQuery{
			Id:         aws.String(q.ID),
			ReturnData: aws.Bool(q.ReturnData),
		}
		if q.Expression != "" {
			mdq.Expression = aws.String(q.Expression)
		}
		if s := q.MetricStat; s != nil {
			dims := make([]cwtypes.Dimension, 0, len(s.Dimensions))
			for _, d := range s.Dimensions {
				dims = append(dims, cwtypes.Dimension{Name: aws.String(d.Name), Value: aws.String(d.Value)})
			}
			mdq.MetricStat = &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String(s.Namespace),
					MetricName: aws.String(s.MetricName),
					Dimensions: dims,
				},
				Period: aws.Int32(s.Period),
				Stat:   aws.String(s.Stat),
			}
		}
		out = append(out, mdq)
	}
	return out
}
