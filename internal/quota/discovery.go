package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// QuotaLister lists every quota of a service, paging through the provider's
// catalog until exhausted.
type QuotaLister interface {
	ListServiceQuotas(ctx context.Context, serviceCode string) ([]model.Quota, error)
}

// MetricsBackend fetches metric data for a set of queries over a window.
type MetricsBackend interface {
	GetMetricData(ctx context.Context, start, end time.Time, queries []model.MetricQuery) ([]model.MetricDataPoint, error)
}

// Discovery finds the quotas of a service that can be monitored for
// utilization.
type Discovery struct {
	lister    QuotaLister
	validator *BatchValidator
}

func NewDiscovery(lister QuotaLister, validator *BatchValidator) *Discovery {
	return &Discovery{lister: lister, validator: validator}
}

// GetQuotaList returns the quotas of serviceCode whose usage metric lives in
// the AWS/Usage namespace.
func (d *Discovery) GetQuotaList(ctx context.Context, serviceCode string) ([]model.Quota, error) {
	logging.Entry(ctx).Debugf("getting quota list for %s", serviceCode)

	all, err := d.lister.ListServiceQuotas(ctx, serviceCode)
	if err != nil {
		return nil, fmt.Errorf("list quotas for %s: %w", serviceCode, err)
	}

	var usable []model.Quota
	for _, q := range all {
		if q.UsageMetric != nil && q.UsageMetric.Namespace == model.UsageNamespace {
			usable = append(usable, q)
		}
	}
	logging.Entry(ctx).Debugf("%d of %d quotas for %s support usage metrics", len(usable), len(all), serviceCode)
	return usable, nil
}

// GetQuotasWithUtilizationMetrics returns the subset of quotas whose
// utilization query the metrics backend actually accepts.
func (d *Discovery) GetQuotasWithUtilizationMetrics(ctx context.Context, serviceCode string, quotas []model.Quota) ([]model.Quota, error) {
	if len(quotas) == 0 {
		return nil, &IncorrectConfigurationError{Msg: "no quotas found"}
	}
	validated := d.validator.ValidateBatches(ctx, serviceCode, quotas)
	logging.Entry(ctx).Infof("validated %d of %d quotas for %s", len(validated), len(quotas), serviceCode)
	return validated, nil
}

// Discover runs GetQuotaList followed by batch validation. A service with
// no usage-metric quotas yields an empty, complete result, not an error.
// Quotas the backend gave no verdict on are reported in Unverified so a
// caller can tell a rejected quota from one that was never checked.
func (d *Discovery) Discover(ctx context.Context, serviceCode string) (Validation, error) {
	candidates, err := d.GetQuotaList(ctx, serviceCode)
	if err != nil {
		return Validation{}, err
	}
	if len(candidates) == 0 {
		logging.Entry(ctx).Infof("no quotas supporting usage metrics for %s", serviceCode)
		return Validation{}, nil
	}
	res := d.validator.Validate(ctx, serviceCode, candidates)
	log := logging.Entry(ctx)
	log.Infof("validated %d of %d quotas for %s", len(res.Accepted), len(candidates), serviceCode)
	if !res.Complete() {
		log.Warnf("%d quotas for %s could not be validated this run", len(res.Unverified), serviceCode)
	}
	return res, nil
}
