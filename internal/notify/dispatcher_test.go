package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
)

type fakeNotifier struct {
	name string
	err  error
	got  []model.Envelope
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(_ context.Context, env model.Envelope) error {
	f.got = append(f.got, env)
	return f.err
}

type fakeTopic struct{ messages []string }

func (f *fakeTopic) Publish(_ context.Context, _, message string) (string, error) {
	f.messages = append(f.messages, message)
	return "id", nil
}

func staticMuting(entries ...string) (MutingSource, *int) {
	loads := 0
	return func(context.Context) ([]string, error) {
		loads++
		return entries, nil
	}, &loads
}

func TestDispatcher_MutedEventsAreNotSent(t *testing.T) {
	stats := observability.NewMetrics()
	source, loads := staticMuting("ec2:L-1216C47A")
	slack := &fakeNotifier{name: "slack"}
	d := NewDispatcher(source, time.Minute, "123456789012", stats, slack)

	outcomes := d.Handle(context.Background(), testEnvelope(model.StatusWarn))
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Muted)
	assert.Contains(t, outcomes[0].Reason, "those quotas/limits are muted")
	assert.Empty(t, slack.got)

	env := testEnvelope(model.StatusWarn)
	env.Detail.LimitCode = "L-0263D0A3"
	env.Detail.LimitName = "EC2-VPC Elastic IPs"
	outcomes = d.Handle(context.Background(), env)
	assert.False(t, outcomes[0].Muted)
	assert.Len(t, slack.got, 1)

	assert.Equal(t, 1, *loads)
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.Notifications.WithLabelValues("slack", "muted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.Notifications.WithLabelValues("slack", "success")))
}

func TestDispatcher_MutingLoadFailureMutesNothing(t *testing.T) {
	slack := &fakeNotifier{name: "slack"}
	failing := func(context.Context) ([]string, error) { return nil, errors.New("ParameterNotFound") }
	d := NewDispatcher(failing, time.Minute, "", nil, slack)

	d.Handle(context.Background(), testEnvelope(model.StatusError))
	assert.Len(t, slack.got, 1)
}

func TestDispatcher_PublishWrapsEvents(t *testing.T) {
	topic := &fakeTopic{}
	broken := &fakeNotifier{name: "slack", err: errors.New("slack down")}
	d := NewDispatcher(nil, time.Minute, "123456789012", nil, NewSNS(topic), broken)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	err := d.Publish(context.Background(), []model.UtilizationEvent{testEnvelope(model.StatusWarn).Detail})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack down")

	require.Len(t, topic.messages, 1)
	assert.Contains(t, topic.messages[0], `"source":"aws-solutions.quota-monitor"`)
	assert.Contains(t, topic.messages[0], `"account":"123456789012"`)
	assert.Contains(t, topic.messages[0], `"Limit Code":"L-1216C47A"`)

	require.Len(t, broken.got, 1)
	env := broken.got[0]
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, now, env.Time)
	assert.Equal(t, "us-east-1", env.Region)
	assert.Equal(t, model.UtilizationDetailType, env.DetailType)
}
