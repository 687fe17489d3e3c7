package quota

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

const (
	BatchSize        = 100
	MaxRetries       = 5
	ValidationWindow = 15 * time.Minute
	BatchDelay       = time.Second

	maxErrorMessageLength = 1000
)

// problematicMetric matches a query id: at least five underscore separated
// segments, any of which may be empty, optionally followed by the percentage
// suffix.
var problematicMetric = regexp.MustCompile(`[a-z0-9]*(?:_[a-z0-9]*){4,}`)

// BatchValidator probes the metrics backend with the queries of a batch of
// quotas and isolates the quotas whose queries it rejects.
type BatchValidator struct {
	metrics MetricsBackend
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

type ValidatorOption func(*BatchValidator)

// WithClock overrides the time source used for the validation window.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *BatchValidator) { v.now = now }
}

// WithSleep overrides the pause between batches.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ValidatorOption {
	return func(v *BatchValidator) { v.sleep = sleep }
}

func NewBatchValidator(metrics MetricsBackend, opts ...ValidatorOption) *BatchValidator {
	v := &BatchValidator{
		metrics: metrics,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Validation is the outcome of validating a list of quotas. Unverified
// quotas were neither accepted nor rejected by the backend: their batch was
// abandoned on a non-validation error, stopped without isolating a fault, or
// never run.
type Validation struct {
	Accepted   []model.Quota
	Unverified []model.Quota
}

// Complete reports whether the backend gave a verdict on every quota.
func (v Validation) Complete() bool { return len(v.Unverified) == 0 }

// ValidateBatches splits quotas into batches of BatchSize and returns the
// quotas whose queries the backend accepted. See Validate.
func (v *BatchValidator) ValidateBatches(ctx context.Context, serviceCode string, quotas []model.Quota) []model.Quota {
	return v.Validate(ctx, serviceCode, quotas).Accepted
}

// Validate runs the batches sequentially with BatchDelay between them.
// Errors never propagate: a rejected quota is evicted and logged, a failed
// batch is logged and its quotas reported as unverified.
func (v *BatchValidator) Validate(ctx context.Context, serviceCode string, quotas []model.Quota) Validation {
	var res Validation
	for start, n := 0, 1; start < len(quotas); start, n = start+BatchSize, n+1 {
		if start > 0 {
			if err := v.sleep(ctx, BatchDelay); err != nil {
				logging.Entry(ctx).Warnf("validation of %s interrupted before batch %d: %v", serviceCode, n, err)
				res.Unverified = append(res.Unverified, quotas[start:]...)
				break
			}
		}
		end := min(start+BatchSize, len(quotas))
		accepted, unverified := v.processBatch(ctx, serviceCode, n, quotas[start:end])
		res.Accepted = append(res.Accepted, accepted...)
		res.Unverified = append(res.Unverified, unverified...)
	}
	return res
}

// processBatch validates one batch. On a validation-class rejection it
// evicts exactly one quota, the one named in the error, and retries with the
// rest, at most MaxRetries times. Quotas left when it gives up are returned
// as unverified.
func (v *BatchValidator) processBatch(ctx context.Context, serviceCode string, batchNum int, batch []model.Quota) (accepted, unverified []model.Quota) {
	log := logging.Entry(ctx).WithField("batch", batchNum)

	for retries := 0; ; retries++ {
		set := NewQuerySet(ctx, batch, ValidationPeriod)
		if set.Len() == 0 {
			log.Debugf("no queries to validate in batch %d for %s", batchNum, serviceCode)
			return nil, nil
		}

		end := v.now()
		_, err := v.metrics.GetMetricData(ctx, end.Add(-ValidationWindow), end, set.Queries())
		if err == nil {
			return set.Quotas(), nil
		}
		if !IsValidationError(err) {
			log.Errorf("Error processing batch %d for %s: %v", batchNum, serviceCode, err)
			return nil, set.Quotas()
		}

		if retries >= MaxRetries {
			log.Warnf("Maximum retries reached for batch %d. Skipping %d remaining quotas for %s.", batchNum, len(batch), serviceCode)
			return nil, set.Quotas()
		}
		metric := ExtractProblematicMetric(errorMessage(err))
		if metric == "" {
			log.Warnf("Unable to extract problematic metric. Skipping remaining quotas in this batch for %s.", serviceCode)
			return nil, set.Quotas()
		}
		bad, rest, ok := removeProblematicQuota(batch, metric)
		if !ok {
			log.Warnf("Could not identify a problematic quota to remove. Skipping remaining quotas in this batch for %s.", serviceCode)
			return nil, set.Quotas()
		}
		log.WithFields(logrus.Fields{
			"quota_code": bad.QuotaCode,
			"query_id":   metric,
			"retry":      retries + 1,
		}).Warnf("Removed quota %s from batch %d for %s: utilization metric rejected", bad.QuotaCode, batchNum, serviceCode)

		batch = rest
		if len(batch) == 0 {
			return nil, nil
		}
	}
}

// ExtractProblematicMetric returns the first query id found in a backend
// error message, or "" if there is none. The message is truncated before
// matching.
func ExtractProblematicMetric(message string) string {
	if len(message) > maxErrorMessageLength {
		message = message[:maxErrorMessageLength]
	}
	return problematicMetric.FindString(message)
}

// errorMessage prefers the API error message over the SDK's wrapped
// operation error text.
func errorMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}

// removeProblematicQuota removes the first quota whose usage or percentage
// query id equals metricID. The input slice is not modified.
func removeProblematicQuota(batch []model.Quota, metricID string) (model.Quota, []model.Quota, bool) {
	for i, q := range batch {
		id := GenerateID(q.UsageMetric, q.QuotaCode)
		if id != metricID && PercentageID(id) != metricID {
			continue
		}
		rest := make([]model.Quota, 0, len(batch)-1)
		rest = append(rest, batch[:i]...)
		rest = append(rest, batch[i+1:]...)
		return q, rest, true
	}
	return model.Quota{}, batch, false
}
