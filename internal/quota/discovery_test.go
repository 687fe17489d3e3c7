package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

func TestGetQuotaList_FiltersUsageNamespace(t *testing.T) {
	usage := usageQuota("EC2", "L-1", "vCPU")
	other := usageQuota("EC2", "L-2", "vCPU")
	other.UsageMetric.Namespace = "AWS/EC2"
	none := model.Quota{ServiceCode: "ec2", QuotaCode: "L-3"}

	d := NewDiscovery(&fakeLister{quotas: []model.Quota{usage, other, none}}, NewBatchValidator(&fakeMetrics{}))
	got, err := d.GetQuotaList(context.Background(), "ec2")

	require.NoError(t, err)
	assert.Equal(t, []model.Quota{usage}, got)
}

func TestGetQuotaList_ListerError(t *testing.T) {
	boom := errors.New("boom")
	d := NewDiscovery(&fakeLister{err: boom}, NewBatchValidator(&fakeMetrics{}))

	_, err := d.GetQuotaList(context.Background(), "ec2")
	assert.ErrorIs(t, err, boom)
}

func TestGetQuotasWithUtilizationMetrics_Empty(t *testing.T) {
	metrics := &fakeMetrics{}
	d := NewDiscovery(&fakeLister{}, NewBatchValidator(metrics))

	_, err := d.GetQuotasWithUtilizationMetrics(context.Background(), "ec2", nil)

	var cfgErr *IncorrectConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, metrics.calls)
}

func TestDiscover(t *testing.T) {
	quotas := manyQuotas(4)
	metrics := &fakeMetrics{reject: rejectQuotas(quotas[2])}
	d := NewDiscovery(&fakeLister{quotas: quotas}, NewBatchValidator(metrics, WithSleep(noSleep)))

	got, err := d.Discover(context.Background(), "ec2")

	require.NoError(t, err)
	assert.Equal(t, []string{"L-0000", "L-0001", "L-0003"}, quotaCodes(got.Accepted))
	assert.True(t, got.Complete())
}

func TestDiscover_ThrottledBatchIsUnverified(t *testing.T) {
	quotas := manyQuotas(2)
	metrics := &fakeMetrics{err: &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}}
	d := NewDiscovery(&fakeLister{quotas: quotas}, NewBatchValidator(metrics, WithSleep(noSleep)))

	got, err := d.Discover(context.Background(), "ec2")

	require.NoError(t, err)
	assert.Empty(t, got.Accepted)
	assert.False(t, got.Complete())
	assert.Equal(t, quotaCodes(quotas), quotaCodes(got.Unverified))
}

func TestDiscover_NoCandidates(t *testing.T) {
	metrics := &fakeMetrics{}
	d := NewDiscovery(&fakeLister{}, NewBatchValidator(metrics))

	got, err := d.Discover(context.Background(), "ec2")

	require.NoError(t, err)
	assert.Empty(t, got.Accepted)
	assert.True(t, got.Complete())
	assert.Empty(t, metrics.calls)
}
