package model

import "time"

// Dimension is a single name/value pair of a metric.
type Dimension struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MetricStat identifies a raw metric series and how to aggregate it.
type MetricStat struct {
	Namespace  string      `json:"namespace"`
	MetricName string      `json:"metric_name"`
	Dimensions []Dimension `json:"dimensions"`
	Period     int32       `json:"period"`
	Stat       string      `json:"stat"`
}

// MetricQuery is a request unit sent to the metrics backend. Exactly one of
// Expression or MetricStat is set.
type MetricQuery struct {
	ID         string      `json:"id"`
	Expression string      `json:"expression,omitempty"`
	MetricStat *MetricStat `json:"metric_stat,omitempty"`
	ReturnData bool        `json:"return_data"`
}

// MetricDataPoint is the series returned for one query. Values and
// Timestamps are parallel.
type MetricDataPoint struct {
	QueryID    string      `json:"query_id"`
	Values     []float64   `json:"values"`
	Timestamps []time.Time `json:"timestamps"`
}
