package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/quota"
)

// catch runs fn and logs a failure, by error code for API errors and as
// unexpected otherwise. Validation-class rejections are logged at WARN, every
// other failure at ERROR. With raise the error is returned wrapped with op,
// without it the failure is swallowed and the zero value returned.
func catch[T any](ctx context.Context, op string, raise bool, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil {
		return v, nil
	}

	log := logging.Entry(ctx).WithField("op", op)
	logf := log.Errorf
	if quota.IsValidationError(err) {
		logf = log.Warnf
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		logf("%s - %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	} else {
		logf("unexpected error: %v", err)
	}

	var zero T
	if raise {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	return zero, nil
}

// catchErr is catch for calls without a result.
func catchErr(ctx context.Context, op string, raise bool, fn func() error) error {
	_, err := catch(ctx, op, raise, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func isErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}

func safeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
