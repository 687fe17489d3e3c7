package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/support"
)

// LoadConfig loads the default credential chain for region. A positive
// timeout bounds every HTTP request made with the config.
func LoadConfig(ctx context.Context, region string, timeout time.Duration) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if timeout > 0 {
		opts = append(opts, config.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// Clients holds the service clients of one region.
type Clients struct {
	Region string
	Config aws.Config

	ServiceQuotas *servicequotas.Client
	CloudWatch    *cloudwatch.Client
	EventBridge   *eventbridge.Client
	DynamoDB      *dynamodb.Client
	SQS           *sqs.Client
	SNS           *sns.Client
	SSM           *ssm.Client
	Support       *support.Client
	EC2           *ec2.Client
	EKS           *eks.Client
	ELBv2         *elasticloadbalancingv2.Client
	AutoScaling   *autoscaling.Client
}

func NewClients(ctx context.Context, region string, timeout time.Duration) (*Clients, error) {
	cfg, err := LoadConfig(ctx, region, timeout)
	if err != nil {
		return nil, err
	}
	return &Clients{
		Region:        region,
		Config:        cfg,
		ServiceQuotas: servicequotas.NewFromConfig(cfg),
		CloudWatch:    cloudwatch.NewFromConfig(cfg),
		EventBridge:   eventbridge.NewFromConfig(cfg),
		DynamoDB:      dynamodb.NewFromConfig(cfg),
		SQS:           sqs.NewFromConfig(cfg),
		SNS:           sns.NewFromConfig(cfg),
		SSM:           ssm.NewFromConfig(cfg),
		// Trusted Advisor is served from us-east-1 only
		Support:     support.NewFromConfig(cfg, func(o *support.Options) { o.Region = "us-east-1" }),
		EC2:         ec2.NewFromConfig(cfg),
		EKS:         eks.NewFromConfig(cfg),
		ELBv2:       elasticloadbalancingv2.NewFromConfig(cfg),
		AutoScaling: autoscaling.NewFromConfig(cfg),
	}, nil
}
