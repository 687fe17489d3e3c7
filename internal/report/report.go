package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Queue is the source of event envelopes.
type Queue interface {
	Receive(ctx context.Context, maxMessages int32) []model.QueueMessage
	Delete(ctx context.Context, receiptHandle string)
}

// Sink stores report items.
type Sink interface {
	PutReport(ctx context.Context, item model.ReportItem) error
}

type Options struct {
	MaxLoops    int
	MaxMessages int32
	Retention   time.Duration
}

// Reporter drains utilization events from a queue into the usage report.
type Reporter struct {
	queue Queue
	sink  Sink
	opts  Options
	stats *observability.Metrics
	now   func() time.Time
}

func New(queue Queue, sink Sink, opts Options, stats *observability.Metrics) *Reporter {
	if opts.MaxLoops <= 0 {
		opts.MaxLoops = 10
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 10
	}
	if opts.Retention <= 0 {
		opts.Retention = 15 * 24 * time.Hour
	}
	return &Reporter{queue: queue, sink: sink, opts: opts, stats: stats, now: time.Now}
}

// Run performs MaxLoops concurrent receive rounds and returns how many
// messages were stored. A message is deleted only after it is stored; one
// that fails stays on the queue for a later run.
func (r *Reporter) Run(ctx context.Context) int {
	ctx = logging.WithFields(ctx, logging.Fields{Component: "reporter"})
	var stored atomic.Int64

	var g errgroup.Group
	for range r.opts.MaxLoops {
		g.Go(func() error {
			stored.Add(int64(r.processMessages(ctx)))
			return nil
		})
	}
	_ = g.Wait()
	return int(stored.Load())
}

func (r *Reporter) processMessages(ctx context.Context) int {
	msgs := r.queue.Receive(ctx, r.opts.MaxMessages)

	var (
		g      errgroup.Group
		stored atomic.Int64
	)
	for _, msg := range msgs {
		g.Go(func() error {
			err := r.store(ctx, msg)
			r.count(err)
			if err != nil {
				logging.Entry(ctx).Errorf("message %s: %v", msg.ID, err)
				return nil
			}
			r.queue.Delete(ctx, msg.ReceiptHandle)
			stored.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	logging.Entry(ctx).Infof("queue message processing complete, %d of %d messages stored", stored.Load(), len(msgs))
	return int(stored.Load())
}

func (r *Reporter) store(ctx context.Context, msg model.QueueMessage) error {
	if msg.Body == "" {
		return nil
	}
	item, err := ToReportItem(msg, r.now(), r.opts.Retention)
	if err != nil {
		return err
	}
	logging.Entry(ctx).Debugf("usage item to put on report table: %+v", item)
	return r.sink.PutReport(ctx, item)
}

func (r *Reporter) count(err error) {
	if r.stats != nil {
		r.stats.ReportMessages.WithLabelValues(observability.Result(err)).Inc()
	}
}

// ToReportItem converts a queued event envelope into a report row expiring
// retention after now.
func ToReportItem(msg model.QueueMessage, now time.Time, retention time.Duration) (model.ReportItem, error) {
	var env model.Envelope
	if err := json.Unmarshal([]byte(msg.Body), &env); err != nil {
		return model.ReportItem{}, fmt.Errorf("decode message body: %w", err)
	}
	d := env.Detail

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := env.Time
	if !d.Timestamp.IsZero() {
		ts = d.Timestamp
	}
	usage := d.CurrentUsage
	if usage == "" {
		usage = "0"
	}

	return model.ReportItem{
		MessageID:    id,
		AccountID:    env.Account,
		TimeStamp:    ts.UTC().Format(time.RFC3339),
		Region:       d.Region,
		Source:       env.Source,
		Service:      d.Service,
		Resource:     d.Resource,
		LimitCode:    d.LimitCode,
		LimitName:    d.LimitName,
		CurrentUsage: usage,
		LimitAmount:  d.LimitAmount,
		Status:       d.Status,
		ExpiryTime:   strconv.FormatInt(now.Add(retention).Unix(), 10),
	}, nil
}
