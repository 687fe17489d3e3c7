package quota

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// Query periods in seconds.
const (
	PollPeriod       int32 = 3600
	ValidationPeriod int32 = 300
)

// QueriesPerCall is the maximum number of metric queries a single
// GetMetricData call accepts.
const QueriesPerCall = 100

func validateUsageMetric(q model.Quota) error {
	m := q.UsageMetric
	if m == nil || m.Namespace == "" || m.MetricName == "" || !hasIDDimensions(m) || m.Statistic == "" {
		name := q.ServiceName
		if name == "" {
			name = q.ServiceCode
		}
		return &UnsupportedQuotaError{ServiceName: name, QuotaCode: q.QuotaCode}
	}
	return nil
}

// hasIDDimensions reports whether every dimension that makes up the query id
// is set.
func hasIDDimensions(m *model.UsageMetric) bool {
	for _, name := range []string{model.DimensionService, model.DimensionResource, model.DimensionClass, model.DimensionType} {
		if m.Dimensions[name] == "" {
			return false
		}
	}
	return true
}

// BuildQueries returns the usage query and the percentage-utilization query
// for a quota. The usage query only feeds the expression and is not returned
// by the backend.
func BuildQueries(q model.Quota, period int32) ([]model.MetricQuery, error) {
	if err := validateUsageMetric(q); err != nil {
		return nil, err
	}
	m := q.UsageMetric

	names := make([]string, 0, len(m.Dimensions))
	for name := range m.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	dims := make([]model.Dimension, 0, len(names))
	for _, name := range names {
		dims = append(dims, model.Dimension{Name: name, Value: m.Dimensions[name]})
	}

	usageID := GenerateID(m, q.QuotaCode)
	usage := model.MetricQuery{
		ID: usageID,
		MetricStat: &model.MetricStat{
			Namespace:  m.Namespace,
			MetricName: m.MetricName,
			Dimensions: dims,
			Period:     period,
			Stat:       m.Statistic,
		},
		ReturnData: false,
	}
	pct := model.MetricQuery{
		ID:         PercentageID(usageID),
		Expression: fmt.Sprintf("(%s / SERVICE_QUOTA(%s)) * 100", usageID, usageID),
		ReturnData: true,
	}
	return []model.MetricQuery{usage, pct}, nil
}

// QuerySet holds the queries built for a list of quotas together with the
// side-table mapping each percentage query id back to its quota. Results are
// correlated through Lookup, never by parsing the id.
type QuerySet struct {
	queries []model.MetricQuery
	quotas  []model.Quota
	byID    map[string]model.Quota
}

// NewQuerySet builds queries for every quota that supports utilization
// monitoring. Unsupported quotas and quotas whose id collides with one
// already in the set are skipped and logged.
func NewQuerySet(ctx context.Context, quotas []model.Quota, period int32) *QuerySet {
	s := &QuerySet{byID: make(map[string]model.Quota, len(quotas))}
	for _, q := range quotas {
		pair, err := BuildQueries(q, period)
		if err != nil {
			logging.Entry(ctx).WithField("quota_code", q.QuotaCode).Warnf("skipping quota: %v", err)
			continue
		}
		pctID := pair[1].ID
		if prev, dup := s.byID[pctID]; dup {
			logging.Entry(ctx).WithFields(logrus.Fields{
				"quota_code": q.QuotaCode,
				"query_id":   pair[0].ID,
				"conflict":   prev.QuotaCode,
			}).Warn("skipping quota: metric query id already in use")
			continue
		}
		s.byID[pctID] = q
		s.quotas = append(s.quotas, q)
		s.queries = append(s.queries, pair...)
	}
	return s
}

// Queries returns all queries, usage and percentage pairs adjacent.
func (s *QuerySet) Queries() []model.MetricQuery { return s.queries }

// Quotas returns the quotas that produced queries, in input order.
func (s *QuerySet) Quotas() []model.Quota { return s.quotas }

func (s *QuerySet) Len() int { return len(s.quotas) }

// Lookup returns the quota whose percentage query has the given id.
func (s *QuerySet) Lookup(queryID string) (model.Quota, bool) {
	q, ok := s.byID[queryID]
	return q, ok
}

// Chunks splits the queries into slices of at most size queries without
// separating a usage query from its percentage query.
func (s *QuerySet) Chunks(size int) [][]model.MetricQuery {
	if size < 2 {
		size = 2
	}
	size -= size % 2
	var chunks [][]model.MetricQuery
	for start := 0; start < len(s.queries); start += size {
		end := start + size
		if end > len(s.queries) {
			end = len(s.queries)
		}
		chunks = append(chunks, s.queries[start:end])
	}
	return chunks
}
