package usagecheck

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/quota"
	"golang.org/x/sync/errgroup"
)

// LimitReader returns the applied value of a quota.
type LimitReader interface {
	GetServiceQuota(ctx context.Context, serviceCode, quotaCode string) (model.Quota, error)
}

// UsageReader counts current usage of quotas through describe calls.
type UsageReader interface {
	Supports(quotaCode string) (serviceCode string, ok bool)
	QuotaCodes() []string
	Usage(ctx context.Context, serviceCode, quotaCode string) (float64, error)
}

type Config struct {
	Region    string
	Threshold float64
	// QuotaCodes limits the check to these codes. Empty means every code
	// the usage reader supports.
	QuotaCodes  []string
	Concurrency int
}

// Checker compares directly counted usage against applied quota values,
// for quotas that publish no usage metric.
type Checker struct {
	cfg    Config
	limits LimitReader
	usage  UsageReader
	now    func() time.Time
}

func New(cfg Config, limits LimitReader, usage UsageReader) *Checker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Checker{cfg: cfg, limits: limits, usage: usage, now: time.Now}
}

// Run checks every configured quota concurrently and returns one event per
// quota it could evaluate, ordered by quota code. Failures are joined into
// the error and do not stop the other checks.
func (c *Checker) Run(ctx context.Context) ([]model.UtilizationEvent, error) {
	ctx = logging.WithFields(ctx, logging.Fields{Component: "usage-check", Region: c.cfg.Region})

	codes := c.cfg.QuotaCodes
	if len(codes) == 0 {
		codes = c.usage.QuotaCodes()
	}

	var (
		mu     sync.Mutex
		events []model.UtilizationEvent
		errs   []error
	)
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for _, code := range codes {
		service, ok := c.usage.Supports(code)
		if !ok {
			logging.Entry(ctx).Warnf("no direct usage check for %s, skipping", code)
			continue
		}
		g.Go(func() error {
			ev, err := c.check(ctx, service, code)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.Entry(ctx).Errorf("usage check for %s/%s failed: %v", service, code, err)
				errs = append(errs, err)
				return nil
			}
			if ev != nil {
				events = append(events, *ev)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(events, func(a, b model.UtilizationEvent) int { return strings.Compare(a.LimitCode, b.LimitCode) })
	return events, errors.Join(errs...)
}

func (c *Checker) check(ctx context.Context, service, code string) (*model.UtilizationEvent, error) {
	limit, err := c.limits.GetServiceQuota(ctx, service, code)
	if err != nil {
		return nil, fmt.Errorf("limit for %s: %w", code, err)
	}
	if limit.Value <= 0 {
		logging.Entry(ctx).Warnf("%s/%s has no applied value, skipping", service, code)
		return nil, nil
	}
	used, err := c.usage.Usage(ctx, service, code)
	if err != nil {
		return nil, fmt.Errorf("usage for %s: %w", code, err)
	}

	pct := used / limit.Value * 100
	name := limit.ServiceName
	if name == "" {
		name = service
	}
	logging.Entry(ctx).Debugf("%s: %v of %v used", code, used, limit.Value)
	return &model.UtilizationEvent{
		Status:       quota.Classify(pct, c.cfg.Threshold),
		LimitCode:    code,
		LimitName:    limit.QuotaName,
		Service:      name,
		Region:       c.cfg.Region,
		CurrentUsage: quota.FormatUsage(pct),
		LimitAmount:  model.PercentageLimitAmount,
		Timestamp:    c.now().UTC(),
	}, nil
}
