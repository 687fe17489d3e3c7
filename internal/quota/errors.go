package quota

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// UnsupportedQuotaError is returned when a quota lacks a well-formed usage
// metric and cannot be monitored for utilization.
type UnsupportedQuotaError struct {
	ServiceName string
	QuotaCode   string
}

func (e *UnsupportedQuotaError) Error() string {
	return fmt.Sprintf("%s for %s does not currently support utilization monitoring", e.QuotaCode, e.ServiceName)
}

// IncorrectConfigurationError reports caller input that violates an
// operation's preconditions. It is never recovered.
type IncorrectConfigurationError struct {
	Msg string
}

func (e *IncorrectConfigurationError) Error() string {
	return "incorrect configuration: " + e.Msg
}

// validationCodes are the API error codes a metrics backend uses to reject
// a request because of its content.
var validationCodes = map[string]bool{
	"ValidationError":             true,
	"ValidationException":         true,
	"InvalidParameterValue":       true,
	"InvalidParameterCombination": true,
}

// IsValidationError reports whether err, or any error it wraps, is a
// validation-class API error. Throttling, transport and auth failures are not.
func IsValidationError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return validationCodes[apiErr.ErrorCode()]
}
