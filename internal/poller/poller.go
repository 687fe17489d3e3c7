package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
	"github.com/yuxishi/aws-quota-monitor/internal/quota"
	"golang.org/x/sync/errgroup"
)

// QuotaSource returns the catalog quotas to monitor for a service.
type QuotaSource interface {
	QuotasForService(ctx context.Context, serviceCode string) ([]model.Quota, error)
}

// Publisher forwards utilization events downstream.
type Publisher interface {
	Publish(ctx context.Context, events []model.UtilizationEvent) error
}

type Config struct {
	Region      string
	Threshold   float64
	Window      time.Duration
	ReportOK    bool
	Concurrency int
}

// Poller evaluates quota utilization for the services of one region.
type Poller struct {
	cfg        Config
	quotas     QuotaSource
	metrics    quota.MetricsBackend
	publishers []Publisher
	stats      *observability.Metrics
	now        func() time.Time
}

func New(cfg Config, quotas QuotaSource, metrics quota.MetricsBackend, stats *observability.Metrics, publishers ...Publisher) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Poller{
		cfg:        cfg,
		quotas:     quotas,
		metrics:    metrics,
		publishers: publishers,
		stats:      stats,
		now:        time.Now,
	}
}

func (p *Poller) Region() string { return p.cfg.Region }

// Result is the outcome of polling one service.
type Result struct {
	Region    string
	Service   string
	Quotas    int
	Evaluated int
	Forwarded int
	Err       error
}

// PollAndEvaluate fetches the utilization of every catalog quota of a
// service over the configured window, classifies each data point and
// forwards the resulting events. A service with no quotas makes no backend
// calls. A failed metrics call loses only its chunk of queries.
func (p *Poller) PollAndEvaluate(ctx context.Context, serviceCode string) (res Result) {
	ctx = logging.WithFields(ctx, logging.Fields{Component: "poller", Region: p.cfg.Region, Service: serviceCode})
	log := logging.Entry(ctx)
	res = Result{Region: p.cfg.Region, Service: serviceCode}

	start := time.Now()
	defer func() {
		p.stats.PollDuration.WithLabelValues(p.cfg.Region, serviceCode).Observe(time.Since(start).Seconds())
		p.stats.PollTotal.WithLabelValues(p.cfg.Region, serviceCode, observability.Result(res.Err)).Inc()
	}()

	quotas, err := p.quotas.QuotasForService(ctx, serviceCode)
	if err != nil {
		res.Err = fmt.Errorf("load quotas for %s: %w", serviceCode, err)
		log.Errorf("failed to load quotas: %v", err)
		return res
	}
	if len(quotas) == 0 {
		log.Debug("no quotas to monitor")
		return res
	}

	set := quota.NewQuerySet(ctx, quotas, quota.PollPeriod)
	res.Quotas = set.Len()
	p.stats.MonitoredQuotas.WithLabelValues(p.cfg.Region, serviceCode).Set(float64(set.Len()))
	if set.Len() == 0 {
		log.Warnf("none of %d quotas support utilization queries", len(quotas))
		return res
	}

	end := p.now()
	begin := end.Add(-p.cfg.Window)

	var (
		events []model.UtilizationEvent
		errs   []error
	)
	for i, chunk := range set.Chunks(quota.QueriesPerCall) {
		points, err := p.metrics.GetMetricData(ctx, begin, end, chunk)
		p.stats.MetricDataCalls.WithLabelValues(p.cfg.Region, observability.Result(err)).Inc()
		if err != nil {
			log.WithField("chunk", i+1).Errorf("Error occurred while getting metric data: %v", err)
			errs = append(errs, err)
			continue
		}
		for _, point := range points {
			q, ok := set.Lookup(point.QueryID)
			if !ok {
				log.WithField("query_id", point.QueryID).Warn("metric result does not belong to any polled quota")
				continue
			}
			for _, ev := range quota.Evaluate(q, p.cfg.Region, point, p.cfg.Threshold) {
				res.Evaluated++
				p.stats.EventsTotal.WithLabelValues(p.cfg.Region, string(ev.Status)).Inc()
				if ev.Status == model.StatusOK && !p.cfg.ReportOK {
					continue
				}
				events = append(events, ev)
			}
		}
	}

	if len(events) > 0 {
		for _, pub := range p.publishers {
			err := pub.Publish(ctx, events)
			p.stats.PublishedEvents.WithLabelValues(publisherName(pub), observability.Result(err)).Add(float64(len(events)))
			if err != nil {
				log.Errorf("failed to publish %d events: %v", len(events), err)
				errs = append(errs, err)
			}
		}
		res.Forwarded = len(events)
	}

	res.Err = errors.Join(errs...)
	log.WithFields(logrus.Fields{
		"quotas":    res.Quotas,
		"evaluated": res.Evaluated,
		"forwarded": res.Forwarded,
	}).Info("poll complete")
	return res
}

// Poll runs PollAndEvaluate for every service concurrently. A failing
// service never stops the others; every outcome is returned, in the order
// of services.
func (p *Poller) Poll(ctx context.Context, services []string) []Result {
	results := make([]Result, len(services))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, svc := range services {
		g.Go(func() error {
			results[i] = p.PollAndEvaluate(gctx, svc)
			return nil // keep polling the remaining services
		})
	}
	_ = g.Wait()
	return results
}

// PollRegions polls the services in every region in parallel.
func PollRegions(ctx context.Context, pollers []*Poller, services []string) []Result {
	perRegion := make([][]Result, len(pollers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pollers {
		g.Go(func() error {
			perRegion[i] = p.Poll(gctx, services)
			return nil
		})
	}
	_ = g.Wait()

	var all []Result
	for _, r := range perRegion {
		all = append(all, r...)
	}
	return all
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

func publisherName(pub Publisher) string {
	if n, ok := pub.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", pub)
}
