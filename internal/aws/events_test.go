package aws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

type fakeEventBridge struct {
	mu      sync.Mutex
	entries [][]ebtypes.PutEventsRequestEntry
	failAll bool
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, in.Entries)

	out := &eventbridge.PutEventsOutput{}
	for range in.Entries {
		r := ebtypes.PutEventsResultEntry{EventId: aws.String("id")}
		if f.failAll {
			r = ebtypes.PutEventsResultEntry{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")}
			out.FailedEntryCount++
		}
		out.Entries = append(out.Entries, r)
	}
	return out, nil
}

func events(n int) []model.UtilizationEvent {
	evs := make([]model.UtilizationEvent, n)
	for i := range evs {
		evs[i] = model.UtilizationEvent{
			Status:       model.StatusWarn,
			LimitCode:    "L-1216C47A",
			Service:      "EC2",
			Region:       "us-east-1",
			CurrentUsage: "85",
			LimitAmount:  model.PercentageLimitAmount,
			Timestamp:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return evs
}

func TestEventPublisher_ChunksOfTen(t *testing.T) {
	api := &fakeEventBridge{}
	require.NoError(t, NewEventPublisher(api, "QuotaMonitorSpokeBus").Publish(context.Background(), events(23)))

	require.Len(t, api.entries, 3)
	sizes := []int{len(api.entries[0]), len(api.entries[1]), len(api.entries[2])}
	assert.ElementsMatch(t, []int{10, 10, 3}, sizes)

	e := api.entries[0][0]
	assert.Equal(t, model.EventSource, *e.Source)
	assert.Equal(t, model.UtilizationDetailType, *e.DetailType)
	assert.Equal(t, "QuotaMonitorSpokeBus", *e.EventBusName)

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(*e.Detail), &detail))
	assert.Equal(t, "WARN", detail["status"])
}

func TestEventPublisher_FailedEntries(t *testing.T) {
	api := &fakeEventBridge{failAll: true}
	err := NewEventPublisher(api, "").Publish(context.Background(), events(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InternalFailure - try again")
	assert.Nil(t, api.entries[0][0].EventBusName)
}

func TestEventPublisher_NothingToSend(t *testing.T) {
	api := &fakeEventBridge{}
	require.NoError(t, NewEventPublisher(api, "bus").Publish(context.Background(), nil))
	assert.Empty(t, api.entries)
}
