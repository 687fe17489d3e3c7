package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/support"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
)

type SupportAPI interface {
	DescribeTrustedAdvisorChecks(ctx context.Context, in *support.DescribeTrustedAdvisorChecksInput, optFns ...func(*support.Options)) (*support.DescribeTrustedAdvisorChecksOutput, error)
	RefreshTrustedAdvisorCheck(ctx context.Context, in *support.RefreshTrustedAdvisorCheckInput, optFns ...func(*support.Options)) (*support.RefreshTrustedAdvisorCheckOutput, error)
}

// Advisor drives Trusted Advisor checks through the Support API.
type Advisor struct {
	api SupportAPI
}

func NewAdvisor(api SupportAPI) *Advisor {
	return &Advisor{api: api}
}

// Available reports whether the account can use the Trusted Advisor API.
// Accounts without a business or enterprise support plan get
// SubscriptionRequiredException.
func (a *Advisor) Available(ctx context.Context) bool {
	_, err := a.api.DescribeTrustedAdvisorChecks(ctx, &support.DescribeTrustedAdvisorChecksInput{
		Language: aws.String("en"),
	})
	if err != nil {
		logging.Entry(ctx).WithError(err).Info("Trusted Advisor check failed, thus this account doesn't have a support plan that includes Trusted Advisor")
		return false
	}
	return true
}

// Refresh requests a refresh of one check and returns its status.
func (a *Advisor) Refresh(ctx context.Context, checkID string) (string, error) {
	return catch(ctx, "RefreshTrustedAdvisorCheck", true, func() (string, error) {
		output, err := a.api.RefreshTrustedAdvisorCheck(ctx, &support.RefreshTrustedAdvisorCheckInput{
			CheckId: aws.String(checkID),
		})
		if err != nil {
			return "", err
		}
		if output.Status == nil {
			return "", nil
		}
		return safeString(output.Status.Status), nil
	})
}
