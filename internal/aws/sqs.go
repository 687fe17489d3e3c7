package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue reads and acknowledges messages of one SQS queue. Failures are
// logged and swallowed; the next receive round picks the messages up again.
type Queue struct {
	api SQSAPI
	url string
}

func NewQueue(api SQSAPI, url string) *Queue {
	return &Queue{api: api, url: url}
}

// Receive returns up to maxMessages messages, or none if the call fails.
func (q *Queue) Receive(ctx context.Context, maxMessages int32) []model.QueueMessage {
	msgs, _ := catch(ctx, "ReceiveMessage", false, func() ([]model.QueueMessage, error) {
		output, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.url),
			MaxNumberOfMessages: maxMessages,
		})
		if err != nil {
			return nil, err
		}
		msgs := make([]model.QueueMessage, 0, len(output.Messages))
		for _, m := range output.Messages {
			msgs = append(msgs, model.QueueMessage{
				ID:            safeString(m.MessageId),
				Body:          safeString(m.Body),
				ReceiptHandle: safeString(m.ReceiptHandle),
			})
		}
		return msgs, nil
	})
	return msgs
}

func (q *Queue) Delete(ctx context.Context, receiptHandle string) {
	_ = catchErr(ctx, "DeleteMessage", false, func() error {
		_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.url),
			ReceiptHandle: aws.String(receiptHandle),
		})
		return err
	})
}
