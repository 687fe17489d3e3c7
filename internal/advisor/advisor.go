package advisor

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
	"golang.org/x/sync/errgroup"
)

// serviceChecks maps Trusted Advisor service names to their service limit
// check ids.
var serviceChecks = map[string][]string{
	"AutoScaling":    {"aW7HH0l7J9", "fW7HH0l7J9"},
	"CloudFormation": {"gW7HH0l7J9"},
	"DynamoDB":       {"6gtQddfEw6", "c5ftjdfkMr"},
	"EBS": {
		"eI7KK0l7J9", "dH7RR0l6J9", "cG7HH0l7J9", "tV7YY0l7J9", "gI7MM0l7J9",
		"wH7DD0l3J9", "gH5CC0e3J9", "dH7RR0l6J3", "gI7MM0l7J2",
	},
	"EC2":     {"0Xc6LMYG8P", "iH7PP0l7J9", "aW9HH0l8J6"},
	"ELB":     {"iK7OO0l7J9", "EM8b3yLRTr", "8wIqYSt25K"},
	"IAM":     {"sU7XX0l7J9", "nO7SS0l7J9", "pR7UU0l7J9", "oQ7TT0l7J9", "rT7WW0l7J9", "qS7VV0l7J9"},
	"Kinesis": {"bW7HH0l7J9"},
	"RDS": {
		"jtlIMO3qZM", "7fuccf1Mx7", "gjqMBn6pjz", "XG0aXHpIEt", "jEECYg2YVU",
		"gfZAn3W7wl", "dV84wpqRUs", "keAhfbH5yb", "dBkuNCvqn5", "3Njm0DJQO9",
		"pYW8UkYz2w", "UUDvOa5r34", "dYWBaXaaMM", "jEhCtdJKOY", "P1jhKWEmLa",
	},
	"Route53": {"dx3xfcdfMr", "ru4xfcdfMr", "ty3xfcdfMr", "dx3xfbjfMr", "dx8afcdfMr"},
	"SES":     {"hJ7NN0l7J9"},
	"VPC":     {"lN7RR0l7J9", "kM7QQ0l7J9", "jL7PP0l7J9"},
}

// Services returns the service names with known checks, sorted.
func Services() []string {
	names := make([]string, 0, len(serviceChecks))
	for name := range serviceChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckIDs returns the check ids of services. Unknown services are skipped.
func CheckIDs(services []string) []string {
	var ids []string
	for _, s := range services {
		ids = append(ids, serviceChecks[s]...)
	}
	return ids
}

// Support is the Trusted Advisor API.
type Support interface {
	Available(ctx context.Context) bool
	Refresh(ctx context.Context, checkID string) (string, error)
}

// Refresher asks Trusted Advisor to refresh its service limit checks.
type Refresher struct {
	support     Support
	services    []string
	concurrency int
	stats       *observability.Metrics
}

func NewRefresher(support Support, services []string, concurrency int, stats *observability.Metrics) *Refresher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Refresher{support: support, services: services, concurrency: concurrency, stats: stats}
}

// Result counts the refreshed and failed checks of a run. Skipped is set
// when Trusted Advisor is not available to the account.
type Result struct {
	Refreshed int
	Failed    int
	Skipped   bool
}

// Refresh refreshes every check of the configured services concurrently.
// A failed check does not stop the others.
func (r *Refresher) Refresh(ctx context.Context) Result {
	ctx = logging.WithFields(ctx, logging.Fields{Component: "ta-refresher"})
	if !r.support.Available(ctx) {
		return Result{Skipped: true}
	}

	ids := CheckIDs(r.services)
	logging.Entry(ctx).Debugf("refreshing TA checks for: %v", r.services)

	var refreshed, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			status, err := r.support.Refresh(ctx, id)
			if r.stats != nil {
				r.stats.AdvisorRefreshes.WithLabelValues(observability.Result(err)).Inc()
			}
			if err != nil {
				failed.Add(1)
				return nil
			}
			logging.Entry(ctx).Debugf("check %s: %s", id, status)
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Refreshed: int(refreshed.Load()), Failed: int(failed.Load())}
	logging.Entry(ctx).Infof("refreshed %d trusted advisor checks, %d failed", res.Refreshed, res.Failed)
	return res
}
