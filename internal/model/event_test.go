package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtilizationEvent_DetailFormat(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := UtilizationEvent{
		Status:       StatusWarn,
		LimitCode:    "L-1216C47A",
		LimitName:    "Running On-Demand Standard instances",
		Resource:     "vCPU",
		Service:      "EC2",
		Region:       "us-east-1",
		CurrentUsage: "81",
		LimitAmount:  PercentageLimitAmount,
		Timestamp:    ts,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "WARN", raw["status"])

	detail, ok := raw["check-item-detail"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "L-1216C47A", detail["Limit Code"])
	assert.Equal(t, "81", detail["Current Usage"])
	assert.Equal(t, "100", detail["Limit Amount"])
	assert.Equal(t, "2026-03-01T12:00:00Z", detail["Timestamp"])
}

func TestUtilizationEvent_OmitsZeroTimestamp(t *testing.T) {
	data, err := json.Marshal(UtilizationEvent{Status: StatusOK})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Timestamp")
}

func TestEnvelope_DecodesBusEvent(t *testing.T) {
	body := `{
		"id": "7bf73129",
		"account": "123456789012",
		"time": "2026-03-01T12:05:00Z",
		"region": "us-east-1",
		"source": "aws-solutions.quota-monitor",
		"detail-type": "Service Quotas Utilization Notification",
		"detail": {
			"status": "ERROR",
			"check-item-detail": {
				"Limit Code": "L-0263D0A3",
				"Limit Name": "EC2-VPC Elastic IPs",
				"Resource": "None",
				"Service": "EC2",
				"Region": "us-east-1",
				"Current Usage": "100",
				"Limit Amount": "100"
			}
		}
	}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	assert.Equal(t, "123456789012", env.Account)
	assert.Equal(t, StatusError, env.Detail.Status)
	assert.Equal(t, "EC2-VPC Elastic IPs", env.Detail.LimitName)
	assert.True(t, env.Detail.Timestamp.IsZero())
}

func TestQuota_Dimension(t *testing.T) {
	q := Quota{QuotaCode: "L-1"}
	assert.Equal(t, "", q.Dimension(DimensionService))

	q.UsageMetric = &UsageMetric{Dimensions: map[string]string{DimensionService: "EC2"}}
	assert.Equal(t, "EC2", q.Dimension(DimensionService))
	assert.Equal(t, "", q.Dimension(DimensionClass))
}
