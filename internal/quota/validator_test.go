package quota

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

func quotaCodes(qs []model.Quota) []string {
	codes := make([]string, len(qs))
	for i, q := range qs {
		codes[i] = q.QuotaCode
	}
	return codes
}

func TestValidateBatches_AllAccepted(t *testing.T) {
	metrics := &fakeMetrics{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewBatchValidator(metrics, WithSleep(noSleep), WithClock(func() time.Time { return now }))

	quotas := manyQuotas(3)
	got := v.ValidateBatches(context.Background(), "ec2", quotas)

	assert.Equal(t, quotas, got)
	require.Len(t, metrics.calls, 1)
	assert.Len(t, metrics.calls[0], 6)
	assert.Equal(t, now.Add(-15*time.Minute), metrics.starts[0])
	assert.Equal(t, now, metrics.ends[0])
	assert.Equal(t, ValidationPeriod, metrics.calls[0][0].MetricStat.Period)
}

func TestValidateBatches_SingleFaultIsolation(t *testing.T) {
	quotas := manyQuotas(10)
	bad := quotas[4]
	metrics := &fakeMetrics{reject: rejectQuotas(bad)}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	got := v.ValidateBatches(context.Background(), "ec2", quotas)

	require.Len(t, got, 9)
	assert.NotContains(t, quotaCodes(got), bad.QuotaCode)
	assert.Len(t, metrics.calls, 2)
	assert.Len(t, metrics.calls[1], 18)
}

func TestValidateBatches_SeveralFaultsEvictedOneAtATime(t *testing.T) {
	quotas := manyQuotas(10)
	metrics := &fakeMetrics{reject: rejectQuotas(quotas[1], quotas[7], quotas[9])}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	got := v.ValidateBatches(context.Background(), "ec2", quotas)

	assert.Len(t, got, 7)
	require.Len(t, metrics.calls, 4)
	for i, call := range metrics.calls {
		assert.Len(t, call, 2*(10-i), "call %d removes exactly one quota", i)
	}
}

func TestValidateBatches_RetryBound(t *testing.T) {
	quotas := manyQuotas(10)
	metrics := &fakeMetrics{reject: rejectQuotas(quotas...)}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	got := v.Validate(context.Background(), "ec2", quotas)

	assert.Empty(t, got.Accepted)
	assert.Len(t, got.Unverified, 10-MaxRetries)
	assert.Len(t, metrics.calls, MaxRetries+1)
}

func TestValidate_RejectionsAreNotUnverified(t *testing.T) {
	quotas := manyQuotas(4)
	metrics := &fakeMetrics{reject: rejectQuotas(quotas[0])}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	got := v.Validate(context.Background(), "ec2", quotas)

	assert.Equal(t, quotaCodes(quotas[1:]), quotaCodes(got.Accepted))
	assert.True(t, got.Complete())
}

func TestValidateBatches_EmptyServiceDimensionDoesNotSinkBatch(t *testing.T) {
	quotas := manyQuotas(5)
	bad := usageQuota("EC2", "L-BAD", "vCPU")
	bad.UsageMetric.Dimensions[model.DimensionService] = ""
	metrics := &fakeMetrics{reject: rejectQuotas(bad)}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	got := v.ValidateBatches(context.Background(), "ec2", append(quotas, bad))

	assert.Equal(t, quotaCodes(quotas), quotaCodes(got))
	require.Len(t, metrics.calls, 1)
	assert.Len(t, metrics.calls[0], 10)
}

func TestValidateBatches_EvictsQuotaWithLeadingEmptySegment(t *testing.T) {
	quotas := manyQuotas(5)
	bad := usageQuota("/", "L-BAD", "vCPU")
	require.True(t, strings.HasPrefix(GenerateID(bad.UsageMetric, bad.QuotaCode), "_"))
	metrics := &fakeMetrics{reject: rejectQuotas(bad)}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	got := v.ValidateBatches(context.Background(), "ec2", append(quotas, bad))

	assert.Equal(t, quotaCodes(quotas), quotaCodes(got))
	assert.Len(t, metrics.calls, 2)
}

func TestValidateBatches_NonValidationErrorAbandonsBatch(t *testing.T) {
	metrics := &fakeMetrics{err: &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	quotas := manyQuotas(150)
	got := v.Validate(context.Background(), "ec2", quotas)

	assert.Empty(t, got.Accepted)
	assert.Equal(t, quotaCodes(quotas), quotaCodes(got.Unverified))
	assert.Len(t, metrics.calls, 2, "both batches are attempted once")
}

func TestValidateBatches_UnidentifiableMetric(t *testing.T) {
	metrics := &fakeMetrics{err: &smithy.GenericAPIError{Code: "ValidationError", Message: "Something went wrong"}}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	assert.Empty(t, v.ValidateBatches(context.Background(), "ec2", manyQuotas(3)))
	assert.Len(t, metrics.calls, 1)
}

func TestValidateBatches_UnknownQuotaInError(t *testing.T) {
	metrics := &fakeMetrics{err: &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: "Error in expression 'ec2_other_none_resource_l9999_pct_utilization': bad",
	}}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	assert.Empty(t, v.ValidateBatches(context.Background(), "ec2", manyQuotas(3)))
	assert.Len(t, metrics.calls, 1)
}

func TestValidateBatches_BatchingAndDelay(t *testing.T) {
	metrics := &fakeMetrics{}
	var slept []time.Duration
	v := NewBatchValidator(metrics, WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	got := v.ValidateBatches(context.Background(), "ec2", manyQuotas(250))

	assert.Len(t, got, 250)
	require.Len(t, metrics.calls, 3)
	assert.Len(t, metrics.calls[0], 200)
	assert.Len(t, metrics.calls[2], 100)
	assert.Equal(t, []time.Duration{BatchDelay, BatchDelay}, slept)
}

func TestValidateBatches_CancelledBetweenBatches(t *testing.T) {
	metrics := &fakeMetrics{}
	v := NewBatchValidator(metrics, WithSleep(func(context.Context, time.Duration) error {
		return context.Canceled
	}))

	got := v.Validate(context.Background(), "ec2", manyQuotas(150))

	assert.Len(t, got.Accepted, 100)
	assert.Len(t, got.Unverified, 50)
	assert.Len(t, metrics.calls, 1)
}

func TestValidateBatches_SkipsBatchWithoutQueries(t *testing.T) {
	metrics := &fakeMetrics{}
	v := NewBatchValidator(metrics, WithSleep(noSleep))

	got := v.ValidateBatches(context.Background(), "ec2", []model.Quota{{QuotaCode: "TestQuota"}})

	assert.Empty(t, got)
	assert.Empty(t, metrics.calls)
}

func TestValidateBatches_AcceptsOnlyQueryableQuotas(t *testing.T) {
	metrics := &fakeMetrics{}
	v := NewBatchValidator(metrics, WithSleep(noSleep))
	good := usageQuota("EC2", "L-1", "vCPU")

	got := v.ValidateBatches(context.Background(), "ec2", []model.Quota{good, {QuotaCode: "NoMetric"}})

	assert.Equal(t, []model.Quota{good}, got)
}

func TestExtractProblematicMetric(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"none", "Some other error without a metric", ""},
		{"percentage id", "Error in expression 'service_resource_none_type_quotacode_pct_utilization': Some error", "service_resource_none_type_quotacode_pct_utilization"},
		{"usage id", "Error in expression 'service_resource_none_type_quotacode': Some error", "service_resource_none_type_quotacode"},
		{"first of several", "Error in expression 'service_resource_none_type_quotacode_pct_utilization' and 'another_service_resource_none_type_quotacode': Some error", "service_resource_none_type_quotacode_pct_utilization"},
		{"empty segments", "Error in expression 'ec2_vcpu___l1': x", "ec2_vcpu___l1"},
		{"leading empty segment", "Error in expression '_vcpu_none_resource_lbad_pct_utilization': x", "_vcpu_none_resource_lbad_pct_utilization"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractProblematicMetric(tt.msg))
		})
	}
}

func TestExtractProblematicMetric_TruncatesLongMessages(t *testing.T) {
	msg := strings.Repeat("x", 1000) + " 'a_b_c_d_e'"
	assert.Equal(t, "", ExtractProblematicMetric(msg))

	long := strings.Repeat("a_", 5000)
	assert.LessOrEqual(t, len(ExtractProblematicMetric(long)), 1000)
}

func TestRemoveProblematicQuota(t *testing.T) {
	good := usageQuota("service", "GoodQuota", "resource")
	bad := usageQuota("service", "BadQuota", "resource")
	batch := []model.Quota{good, bad}

	removed, rest, ok := removeProblematicQuota(batch, PercentageID(GenerateID(bad.UsageMetric, bad.QuotaCode)))
	require.True(t, ok)
	assert.Equal(t, "BadQuota", removed.QuotaCode)
	assert.Equal(t, []model.Quota{good}, rest)
	assert.Len(t, batch, 2)

	removed, _, ok = removeProblematicQuota(batch, GenerateID(good.UsageMetric, good.QuotaCode))
	require.True(t, ok)
	assert.Equal(t, "GoodQuota", removed.QuotaCode)

	_, rest, ok = removeProblematicQuota(batch, "bad_metric")
	assert.False(t, ok)
	assert.Len(t, rest, 2)
}

func TestIsValidationError(t *testing.T) {
	for _, code := range []string{"ValidationError", "ValidationException", "InvalidParameterValue", "InvalidParameterCombination"} {
		err := &smithy.GenericAPIError{Code: code}
		assert.True(t, IsValidationError(err), code)
		assert.True(t, IsValidationError(errors.Join(errors.New("wrapped"), err)), code)
	}
	assert.False(t, IsValidationError(&smithy.GenericAPIError{Code: "ThrottlingException"}))
	assert.False(t, IsValidationError(errors.New("ValidationError")))
	assert.False(t, IsValidationError(nil))
}
