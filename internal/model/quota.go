package model

import "time"

// UsageNamespace is the CloudWatch namespace that marks a quota as a
// candidate for utilization monitoring.
const UsageNamespace = "AWS/Usage"

// Usage metric dimension keys that make up a metric query id.
const (
	DimensionService  = "Service"
	DimensionResource = "Resource"
	DimensionClass    = "Class"
	DimensionType     = "Type"
)

// UsageMetric describes where the current-usage time series of a quota lives.
type UsageMetric struct {
	Namespace  string            `json:"namespace" dynamodbav:"MetricNamespace"`
	MetricName string            `json:"metric_name" dynamodbav:"MetricName"`
	Dimensions map[string]string `json:"dimensions" dynamodbav:"MetricDimensions"`
	Statistic  string            `json:"statistic" dynamodbav:"MetricStatisticRecommendation"`
}

// Quota is a monitored limit on an AWS service.
type Quota struct {
	ServiceCode string       `json:"service_code" dynamodbav:"ServiceCode"`
	ServiceName string       `json:"service_name,omitempty" dynamodbav:"ServiceName,omitempty"`
	QuotaCode   string       `json:"quota_code" dynamodbav:"QuotaCode"`
	QuotaName   string       `json:"quota_name" dynamodbav:"QuotaName"`
	Value       float64      `json:"value" dynamodbav:"Value"`
	Unit        string       `json:"unit,omitempty" dynamodbav:"Unit,omitempty"`
	Adjustable  bool         `json:"adjustable" dynamodbav:"Adjustable"`
	Global      bool         `json:"global" dynamodbav:"GlobalQuota"`
	UsageMetric *UsageMetric `json:"usage_metric,omitempty" dynamodbav:"UsageMetric,omitempty"`
}

// Dimension returns the named usage metric dimension, or "" when the quota
// has no usage metric or the dimension is absent.
func (q Quota) Dimension(name string) string {
	if q.UsageMetric == nil {
		return ""
	}
	return q.UsageMetric.Dimensions[name]
}

// CatalogEntry is a quota row in the persisted catalog.
type CatalogEntry struct {
	Quota
	LastMonitored time.Time `json:"last_monitored" dynamodbav:"LastMonitored,unixtime"`
	ExpiryTime    int64     `json:"expiry_time" dynamodbav:"ExpiryTime"`
}

// ServiceStatus is a row of the service monitoring table.
type ServiceStatus struct {
	ServiceCode string `json:"service_code" dynamodbav:"ServiceCode"`
	Monitored   bool   `json:"monitored" dynamodbav:"Monitored"`
}

type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Service struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
