package usagecheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

type fakeLimits map[string]float64

func (f fakeLimits) GetServiceQuota(_ context.Context, service, code string) (model.Quota, error) {
	v, ok := f[code]
	if !ok {
		return model.Quota{}, errors.New("NoSuchResourceException")
	}
	return model.Quota{ServiceCode: service, QuotaCode: code, QuotaName: "name " + code, Value: v}, nil
}

type fakeUsage struct {
	services map[string]string
	usage    map[string]float64
}

func (f fakeUsage) Supports(code string) (string, bool) {
	s, ok := f.services[code]
	return s, ok
}

func (f fakeUsage) QuotaCodes() []string {
	var codes []string
	for c := range f.services {
		codes = append(codes, c)
	}
	return codes
}

func (f fakeUsage) Usage(_ context.Context, _, code string) (float64, error) {
	return f.usage[code], nil
}

func TestChecker_Run(t *testing.T) {
	usage := fakeUsage{
		services: map[string]string{"L-1216C47A": "ec2", "L-0263D0A3": "ec2", "L-F678F1CE": "vpc", "L-CDE20ADC": "autoscaling"},
		usage:    map[string]float64{"L-1216C47A": 5, "L-0263D0A3": 9, "L-F678F1CE": 4.5},
	}
	limits := fakeLimits{"L-1216C47A": 5, "L-0263D0A3": 10, "L-F678F1CE": 10}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{Region: "us-east-1", Threshold: 80, Concurrency: 2}, limits, usage)
	c.now = func() time.Time { return now }

	events, err := c.Run(context.Background())
	require.Error(t, err, "autoscaling limit lookup fails")
	require.Len(t, events, 3)

	assert.Equal(t, "L-0263D0A3", events[0].LimitCode)
	assert.Equal(t, model.StatusWarn, events[0].Status)
	assert.Equal(t, "90", events[0].CurrentUsage)

	assert.Equal(t, "L-1216C47A", events[1].LimitCode)
	assert.Equal(t, model.StatusError, events[1].Status)
	assert.Equal(t, "100", events[1].CurrentUsage)
	assert.Equal(t, "ec2", events[1].Service)
	assert.Equal(t, now, events[1].Timestamp)

	assert.Equal(t, model.StatusOK, events[2].Status)
	assert.Equal(t, "45", events[2].CurrentUsage)
	assert.Equal(t, model.PercentageLimitAmount, events[2].LimitAmount)
}

func TestChecker_ConfiguredCodes(t *testing.T) {
	usage := fakeUsage{
		services: map[string]string{"L-1216C47A": "ec2"},
		usage:    map[string]float64{"L-1216C47A": 1},
	}
	c := New(Config{Threshold: 80, QuotaCodes: []string{"L-1216C47A", "L-UNKNOWN"}}, fakeLimits{"L-1216C47A": 0}, usage)

	events, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events, "zero limits are skipped")
}
