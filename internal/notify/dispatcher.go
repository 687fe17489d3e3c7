package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yuxishi/aws-quota-monitor/internal/cache"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
)

const mutingCacheKey = "muting"

// Notifier delivers one event to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, env model.Envelope) error
}

// MutingSource loads the muting configuration entries.
type MutingSource func(ctx context.Context) ([]string, error)

// Outcome is what happened to an event on one channel.
type Outcome struct {
	Channel string
	Muted   bool
	Reason  string
	Err     error
}

// Dispatcher checks events against the muting configuration and hands the
// unmuted ones to every notifier.
type Dispatcher struct {
	muting    MutingSource
	cache     *cache.Cache[Muting]
	notifiers []Notifier
	account   string
	stats     *observability.Metrics
	now       func() time.Time
}

// NewDispatcher builds a dispatcher. The muting configuration is reloaded
// at most once per mutingTTL.
func NewDispatcher(muting MutingSource, mutingTTL time.Duration, account string, stats *observability.Metrics, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		muting:    muting,
		cache:     cache.New[Muting](mutingTTL),
		notifiers: notifiers,
		account:   account,
		stats:     stats,
		now:       time.Now,
	}
}

func (d *Dispatcher) Name() string { return "dispatcher" }

func (d *Dispatcher) mutingConfig(ctx context.Context) Muting {
	if d.muting == nil {
		return Muting{}
	}
	m, _, err := d.cache.GetOrLoad(mutingCacheKey, func() (Muting, error) {
		entries, err := d.muting(ctx)
		if err != nil {
			return Muting{}, err
		}
		logging.Entry(ctx).Debugf("mutingConfiguration %v", entries)
		return ParseMuting(entries), nil
	})
	if err != nil {
		// an unreadable configuration mutes nothing
		logging.Entry(ctx).Warnf("could not load notification muting configuration: %v", err)
		return Muting{}
	}
	return m
}

// Handle delivers env to every notifier unless it is muted.
func (d *Dispatcher) Handle(ctx context.Context, env model.Envelope) []Outcome {
	status := d.mutingConfig(ctx).Status(QuotaRef{
		Service:   env.Detail.Service,
		QuotaName: env.Detail.LimitName,
		QuotaCode: env.Detail.LimitCode,
		Resource:  env.Detail.Resource,
	})

	outcomes := make([]Outcome, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		if status.Muted {
			logging.Entry(ctx).Debugf("Processed event, notification not sent: %s", status.Message)
			d.count(n.Name(), "muted")
			outcomes = append(outcomes, Outcome{Channel: n.Name(), Muted: true, Reason: status.Message})
			continue
		}
		err := n.Notify(ctx, env)
		if err != nil {
			logging.Entry(ctx).Errorf("%s notification for %s failed: %v", n.Name(), env.Detail.LimitCode, err)
		}
		d.count(n.Name(), observability.Result(err))
		outcomes = append(outcomes, Outcome{Channel: n.Name(), Err: err})
	}
	return outcomes
}

// Publish wraps events in bus envelopes and handles each, so a dispatcher
// can stand in for the event bus.
func (d *Dispatcher) Publish(ctx context.Context, events []model.UtilizationEvent) error {
	var errs []error
	for _, ev := range events {
		env := model.Envelope{
			ID:         uuid.NewString(),
			Account:    d.account,
			Time:       d.now().UTC(),
			Region:     ev.Region,
			Source:     model.EventSource,
			DetailType: model.UtilizationDetailType,
			Detail:     ev,
		}
		for _, o := range d.Handle(ctx, env) {
			if o.Err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", o.Channel, ev.LimitCode, o.Err))
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) count(channel, result string) {
	if d.stats != nil {
		d.stats.Notifications.WithLabelValues(channel, result).Inc()
	}
}
