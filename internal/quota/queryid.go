package quota

import (
	"regexp"
	"strings"

	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// PercentageSuffix is appended to a usage query id to form the id of the
// derived percentage-utilization query.
const PercentageSuffix = "_pct_utilization"

var invalidIDChars = regexp.MustCompile(`[^a-z0-9_]`)

func sanitizeIDPart(s string) string {
	return invalidIDChars.ReplaceAllString(strings.ToLower(s), "")
}

// GenerateID derives the metric query id of a quota from its usage metric
// dimensions and quota code, as service_resource_class_type_code. Missing
// dimensions contribute an empty segment. The mapping is deterministic but
// not injective: values differing only in case or punctuation collide.
func GenerateID(metric *model.UsageMetric, quotaCode string) string {
	var dims map[string]string
	if metric != nil {
		dims = metric.Dimensions
	}
	return strings.Join([]string{
		sanitizeIDPart(dims[model.DimensionService]),
		sanitizeIDPart(dims[model.DimensionResource]),
		sanitizeIDPart(dims[model.DimensionClass]),
		sanitizeIDPart(dims[model.DimensionType]),
		sanitizeIDPart(quotaCode),
	}, "_")
}

// PercentageID returns the id of the percentage query derived from usageID.
func PercentageID(usageID string) string {
	return usageID + PercentageSuffix
}
