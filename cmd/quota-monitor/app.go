package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yuxishi/aws-quota-monitor/internal/aws"
	"github.com/yuxishi/aws-quota-monitor/internal/catalog"
	"github.com/yuxishi/aws-quota-monitor/internal/config"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/notify"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
	"github.com/yuxishi/aws-quota-monitor/internal/poller"
	"github.com/yuxishi/aws-quota-monitor/internal/quota"
	"github.com/yuxishi/aws-quota-monitor/internal/report"
	"github.com/yuxishi/aws-quota-monitor/internal/store/sqlite"
)

// mutingTTL bounds how stale the muting configuration may get.
const mutingTTL = 5 * time.Minute

// region holds everything wired for one monitored region.
type region struct {
	name    string
	clients *aws.Clients
	fetcher *aws.QuotaFetcher
	store   catalog.Store
	catalog *catalog.Manager
	poller  *poller.Poller
}

// app is the wired application. The first configured region is the home
// region: it hosts the report table, the queue and the notification
// parameters.
type app struct {
	cfg        *config.Config
	stats      *observability.Metrics
	regions    []*region
	local      *sqlite.Store
	dispatcher *notify.Dispatcher
	reports    report.Sink
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, stats: observability.NewMetrics()}

	if cfg.Store.Backend == config.StoreSQLite {
		local, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.local = local
		a.reports = local
	}

	for i, name := range cfg.Regions {
		clients, err := aws.NewClients(ctx, name, cfg.RequestTimeout)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("aws clients for %s: %w", name, err)
		}
		if i == 0 {
			a.dispatcher = a.newDispatcher(clients)
		}
		a.regions = append(a.regions, a.newRegion(clients))
	}
	if a.reports == nil {
		a.reports = a.regions[0].store.(*aws.DynamoStore)
	}
	return a, nil
}

func (a *app) newRegion(clients *aws.Clients) *region {
	r := &region{
		name:    clients.Region,
		clients: clients,
		fetcher: aws.NewQuotaFetcher(clients.ServiceQuotas),
	}
	if a.local != nil {
		r.store = a.local.Region(clients.Region)
	} else {
		r.store = aws.NewDynamoStore(clients.DynamoDB, aws.Tables{
			Service: a.cfg.Store.ServiceTable,
			Quota:   a.cfg.Store.QuotaTable,
			Report:  a.cfg.Store.ReportTable,
		})
	}

	metrics := aws.NewMetricsClient(clients.CloudWatch)
	discovery := quota.NewDiscovery(r.fetcher, quota.NewBatchValidator(metrics))
	r.catalog = catalog.NewManager(r.store, discovery, catalog.Options{
		Services:    a.cfg.Services,
		Retention:   a.cfg.Store.QuotaRetention,
		Concurrency: a.cfg.MaxConcurrency,
	}, a.stats)

	publishers := []poller.Publisher{aws.NewEventPublisher(clients.EventBridge, a.cfg.EventBus)}
	if a.cfg.Notifications.Direct && a.dispatcher != nil {
		publishers = append(publishers, a.dispatcher)
	}
	r.poller = poller.New(poller.Config{
		Region:      clients.Region,
		Threshold:   a.cfg.Threshold,
		Window:      a.cfg.PollWindow(),
		ReportOK:    a.cfg.ReportOKNotifications,
		Concurrency: a.cfg.MaxConcurrency,
	}, r.catalog, metrics, a.stats, publishers...)
	return r
}

// newDispatcher wires the notifiers that are configured. It returns nil
// when none are.
func (a *app) newDispatcher(clients *aws.Clients) *notify.Dispatcher {
	params := aws.NewParameters(clients.SSM)
	n := a.cfg.Notifications

	var notifiers []notify.Notifier
	if n.SlackHookParameter != "" {
		notifiers = append(notifiers, notify.NewSlack(func(ctx context.Context) (string, error) {
			return params.Get(ctx, n.SlackHookParameter)
		}, nil))
	}
	if n.SNSTopicARN != "" {
		notifiers = append(notifiers, notify.NewSNS(aws.NewTopic(clients.SNS, n.SNSTopicARN)))
	}
	if len(notifiers) == 0 {
		return nil
	}

	var muting notify.MutingSource
	if n.MutingParameter != "" {
		muting = func(ctx context.Context) ([]string, error) {
			return params.GetList(ctx, n.MutingParameter)
		}
	}
	return notify.NewDispatcher(muting, mutingTTL, "", a.stats, notifiers...)
}

func (a *app) home() *region { return a.regions[0] }

func (a *app) region(name string) (*region, error) {
	if name == "" {
		return a.home(), nil
	}
	for _, r := range a.regions {
		if r.name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("region %s is not configured", name)
}

// syncCatalogs syncs the catalog of every region and purges expired rows
// from a local store.
func (a *app) syncCatalogs(ctx context.Context) error {
	var firstErr error
	for _, r := range a.regions {
		rctx := logging.WithFields(ctx, logging.Fields{Region: r.name})
		if err := r.catalog.Sync(rctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", r.name, err)
		}
	}
	if a.local != nil {
		n, err := a.local.PurgeExpired(ctx, time.Now())
		if err != nil {
			logging.Entry(ctx).Errorf("purge expired rows: %v", err)
		} else if n > 0 {
			logging.Entry(ctx).Infof("purged %d expired rows", n)
		}
	}
	return firstErr
}

// pollAll polls the monitored services of every region.
func (a *app) pollAll(ctx context.Context) ([]poller.Result, error) {
	var results []poller.Result
	for _, r := range a.regions {
		services, err := r.catalog.MonitoredServices(ctx)
		if err != nil {
			return results, fmt.Errorf("%s: %w", r.name, err)
		}
		results = append(results, r.poller.Poll(ctx, services)...)
	}
	if failed := poller.Failed(results); len(failed) > 0 {
		logging.Entry(ctx).Warnf("%d of %d service polls failed", len(failed), len(results))
	}
	return results, nil
}

func (a *app) newReporter() (*report.Reporter, error) {
	if a.cfg.Report.QueueURL == "" {
		return nil, fmt.Errorf("report.queue_url is not configured")
	}
	queue := aws.NewQueue(a.home().clients.SQS, a.cfg.Report.QueueURL)
	return report.New(queue, a.reports, report.Options{
		MaxLoops:    a.cfg.Report.MaxLoops,
		MaxMessages: int32(a.cfg.Report.MaxMessages),
		Retention:   a.cfg.Store.ReportRetention,
	}, a.stats), nil
}

func (a *app) dispatch(ctx context.Context, env model.Envelope) ([]notify.Outcome, error) {
	if a.dispatcher == nil {
		return nil, fmt.Errorf("no notifier is configured")
	}
	return a.dispatcher.Handle(ctx, env), nil
}

func (a *app) Close() {
	if a.local != nil {
		_ = a.local.Close()
	}
}
