package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
)

type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Topic struct {
	api SNSAPI
	arn string
}

func NewTopic(api SNSAPI, arn string) *Topic {
	return &Topic{api: api, arn: arn}
}

// Publish sends message to the topic and returns the message id.
func (t *Topic) Publish(ctx context.Context, subject, message string) (string, error) {
	return catch(ctx, "Publish", true, func() (string, error) {
		input := &sns.PublishInput{
			TopicArn: aws.String(t.arn),
			Message:  aws.String(message),
		}
		if subject != "" {
			input.Subject = aws.String(subject)
		}
		output, err := t.api.Publish(ctx, input)
		if err != nil {
			return "", err
		}
		id := safeString(output.MessageId)
		logging.Entry(ctx).Debugf("published message %s to %s", id, t.arn)
		return id, nil
	})
}
