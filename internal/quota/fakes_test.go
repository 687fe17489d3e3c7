package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/smithy-go"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

func usageQuota(service, code, resource string) model.Quota {
	return model.Quota{
		ServiceCode: service,
		ServiceName: service,
		QuotaCode:   code,
		QuotaName:   code + " name",
		UsageMetric: &model.UsageMetric{
			Namespace:  model.UsageNamespace,
			MetricName: "ResourceCount",
			Dimensions: map[string]string{
				model.DimensionService:  service,
				model.DimensionResource: resource,
				model.DimensionClass:    "None",
				model.DimensionType:     "Resource",
			},
			Statistic: "Maximum",
		},
	}
}

func manyQuotas(n int) []model.Quota {
	qs := make([]model.Quota, n)
	for i := range qs {
		qs[i] = usageQuota("EC2", fmt.Sprintf("L-%04d", i), "vCPU")
	}
	return qs
}

// fakeMetrics rejects any call containing a query id in reject, naming the
// first such id in the error message, as CloudWatch does.
type fakeMetrics struct {
	reject map[string]bool
	err    error
	calls  [][]model.MetricQuery
	starts []time.Time
	ends   []time.Time
}

func (f *fakeMetrics) GetMetricData(_ context.Context, start, end time.Time, queries []model.MetricQuery) ([]model.MetricDataPoint, error) {
	f.calls = append(f.calls, queries)
	f.starts = append(f.starts, start)
	f.ends = append(f.ends, end)
	if f.err != nil {
		return nil, f.err
	}
	for _, q := range queries {
		if q.Expression != "" && f.reject[q.ID] {
			return nil, &smithy.GenericAPIError{
				Code:    "ValidationError",
				Message: fmt.Sprintf("Error in expression '%s': Unsupported dimension combination for SERVICE_QUOTA", q.ID),
			}
		}
	}
	return nil, nil
}

func rejectQuotas(qs ...model.Quota) map[string]bool {
	m := map[string]bool{}
	for _, q := range qs {
		m[PercentageID(GenerateID(q.UsageMetric, q.QuotaCode))] = true
	}
	return m
}

type fakeLister struct {
	quotas []model.Quota
	err    error
}

func (f *fakeLister) ListServiceQuotas(context.Context, string) ([]model.Quota, error) {
	return f.quotas, f.err
}

func noSleep(context.Context, time.Duration) error { return nil }
