package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"golang.org/x/sync/errgroup"
)

// maxPutEntries is the PutEvents entry limit.
const maxPutEntries = 10

type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventPublisher puts utilization events on an event bus.
type EventPublisher struct {
	api EventBridgeAPI
	bus string
}

func NewEventPublisher(api EventBridgeAPI, bus string) *EventPublisher {
	return &EventPublisher{api: api, bus: bus}
}

func (p *EventPublisher) Name() string { return "eventbridge" }

// Publish sends events in chunks of ten. Chunks are sent concurrently and
// every failed entry is reported in the returned error.
func (p *EventPublisher) Publish(ctx context.Context, events []model.UtilizationEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]ebtypes.PutEventsRequestEntry, 0, len(events))
	for _, ev := range events {
		detail, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event for %s: %w", ev.LimitCode, err)
		}
		entry := ebtypes.PutEventsRequestEntry{
			Source:     aws.String(model.EventSource),
			DetailType: aws.String(model.UtilizationDetailType),
			Detail:     aws.String(string(detail)),
		}
		if p.bus != "" {
			entry.EventBusName = aws.String(p.bus)
		}
		entries = append(entries, entry)
	}

	errs := make([]error, (len(entries)+maxPutEntries-1)/maxPutEntries)
	var g errgroup.Group
	for i := 0; i*maxPutEntries < len(entries); i++ {
		chunk := entries[i*maxPutEntries : min((i+1)*maxPutEntries, len(entries))]
		g.Go(func() error {
			errs[i] = p.put(ctx, chunk)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *EventPublisher) put(ctx context.Context, entries []ebtypes.PutEventsRequestEntry) error {
	output, err := p.api.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		logging.Entry(ctx).Errorf("PutEvents failed: %v", err)
		return fmt.Errorf("put events: %w", err)
	}
	if output.FailedEntryCount == 0 {
		logging.Entry(ctx).Debugf("put %d events", len(entries))
		return nil
	}

	var errs []error
	for i, r := range output.Entries {
		if r.ErrorCode == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("event %d: %s - %s", i, safeString(r.ErrorCode), safeString(r.ErrorMessage)))
	}
	logging.Entry(ctx).Errorf("%d of %d events failed", output.FailedEntryCount, len(entries))
	return fmt.Errorf("put events: %d failed entries: %w", output.FailedEntryCount, errors.Join(errs...))
}
