package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// TopicPublisher publishes a message to a topic and returns its id.
type TopicPublisher interface {
	Publish(ctx context.Context, subject, message string) (string, error)
}

// SNS forwards the raw event envelope to a topic.
type SNS struct {
	topic TopicPublisher
}

func NewSNS(topic TopicPublisher) *SNS {
	return &SNS{topic: topic}
}

func (s *SNS) Name() string { return "sns" }

func (s *SNS) Notify(ctx context.Context, env model.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := s.topic.Publish(ctx, "", string(body)); err != nil {
		return err
	}
	return nil
}
