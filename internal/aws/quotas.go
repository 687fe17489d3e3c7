package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	sqtypes "github.com/aws/aws-sdk-go-v2/service/servicequotas/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// ServiceQuotasAPI is the part of the Service Quotas client the fetcher uses.
type ServiceQuotasAPI interface {
	servicequotas.ListServicesAPIClient
	servicequotas.ListServiceQuotasAPIClient
	GetServiceQuota(ctx context.Context, in *servicequotas.GetServiceQuotaInput, optFns ...func(*servicequotas.Options)) (*servicequotas.GetServiceQuotaOutput, error)
}

// QuotaFetcher reads the Service Quotas catalog of one region.
type QuotaFetcher struct {
	api        ServiceQuotasAPI
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewQuotaFetcher(api ServiceQuotasAPI) *QuotaFetcher {
	return &QuotaFetcher{
		api:        api,
		maxRetries: 4,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
}

// retry runs op again on Service Quotas throttling, with exponential
// backoff. Other errors are returned at once.
func (f *QuotaFetcher) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isErrorCode(err, "TooManyRequestsException", "ThrottlingException") {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// GetServices lists the services known to Service Quotas.
func (f *QuotaFetcher) GetServices(ctx context.Context) ([]model.Service, error) {
	return catch(ctx, "ListServices", true, func() ([]model.Service, error) {
		var services []model.Service
		paginator := servicequotas.NewListServicesPaginator(f.api, &servicequotas.ListServicesInput{})
		for paginator.HasMorePages() {
			var output *servicequotas.ListServicesOutput
			err := f.retry(ctx, func() (err error) {
				output, err = paginator.NextPage(ctx)
				return err
			})
			if err != nil {
				return nil, err
			}
			for _, s := range output.Services {
				services = append(services, model.Service{
					Code: safeString(s.ServiceCode),
					Name: safeString(s.ServiceName),
				})
			}
		}
		return services, nil
	})
}

// ListServiceQuotas pages through every quota of a service.
func (f *QuotaFetcher) ListServiceQuotas(ctx context.Context, serviceCode string) ([]model.Quota, error) {
	return catch(ctx, "ListServiceQuotas", true, func() ([]model.Quota, error) {
		var quotas []model.Quota
		paginator := servicequotas.NewListServiceQuotasPaginator(f.api, &servicequotas.ListServiceQuotasInput{
			ServiceCode: &serviceCode,
		})
		for paginator.HasMorePages() {
			var output *servicequotas.ListServiceQuotasOutput
			err := f.retry(ctx, func() (err error) {
				output, err = paginator.NextPage(ctx)
				return err
			})
			if err != nil {
				return nil, err
			}
			for _, q := range output.Quotas {
				quotas = append(quotas, toQuota(q))
			}
		}
		return quotas, nil
	})
}

// GetServiceQuota returns the applied value of one quota.
func (f *QuotaFetcher) GetServiceQuota(ctx context.Context, serviceCode, quotaCode string) (model.Quota, error) {
	return catch(ctx, "GetServiceQuota", true, func() (model.Quota, error) {
		var output *servicequotas.GetServiceQuotaOutput
		err := f.retry(ctx, func() (err error) {
			output, err = f.api.GetServiceQuota(ctx, &servicequotas.GetServiceQuotaInput{
				ServiceCode: &serviceCode,
				QuotaCode:   &quotaCode,
			})
			return err
		})
		if err != nil {
			return model.Quota{}, err
		}
		if output.Quota == nil {
			return model.Quota{}, fmt.Errorf("no quota %s for %s", quotaCode, serviceCode)
		}
		return toQuota(*output.Quota), nil
	})
}

func toQuota(q sqtypes.ServiceQuota) model.Quota {
	quota := model.Quota{
		ServiceCode: safeString(q.ServiceCode),
		ServiceName: safeString(q.ServiceName),
		QuotaName:   safeString(q.QuotaName),
		QuotaCode:   safeString(q.QuotaCode),
		Unit:        safeString(q.Unit),
		Adjustable:  q.Adjustable,
		Global:      q.GlobalQuota,
	}
	if q.Value != nil {
		quota.Value = *q.Value
	}
	if m := q.UsageMetric; m != nil {
		quota.UsageMetric = &model.UsageMetric{
			Namespace:  safeString(m.MetricNamespace),
			MetricName: safeString(m.MetricName),
			Dimensions: m.MetricDimensions,
			Statistic:  safeString(m.MetricStatisticRecommendation),
		}
	}
	return quota
}
