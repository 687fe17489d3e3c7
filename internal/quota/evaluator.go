package quota

import (
	"strconv"

	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// Classify maps a utilization percentage to a status. Any value at or above
// 100 is ERROR, regardless of threshold.
func Classify(value, threshold float64) model.Status {
	switch {
	case value >= 100:
		return model.StatusError
	case value > threshold:
		return model.StatusWarn
	default:
		return model.StatusOK
	}
}

// FormatUsage renders a utilization value the way it appears in events:
// shortest decimal representation, no unit.
func FormatUsage(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// Evaluate emits one event per value of point. The quota is the one the
// point's query id was built for, looked up by the caller.
func Evaluate(q model.Quota, region string, point model.MetricDataPoint, threshold float64) []model.UtilizationEvent {
	events := make([]model.UtilizationEvent, 0, len(point.Values))
	for i, value := range point.Values {
		ev := model.UtilizationEvent{
			Status:       Classify(value, threshold),
			LimitCode:    q.QuotaCode,
			LimitName:    q.QuotaName,
			Resource:     q.Dimension(model.DimensionResource),
			Service:      q.Dimension(model.DimensionService),
			Region:       region,
			CurrentUsage: FormatUsage(value),
			LimitAmount:  model.PercentageLimitAmount,
		}
		if i < len(point.Timestamps) {
			ev.Timestamp = point.Timestamps[i]
		}
		events = append(events, ev)
	}
	return events
}
