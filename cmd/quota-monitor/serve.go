package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/cache"
	"github.com/yuxishi/aws-quota-monitor/internal/handler"
	"github.com/yuxishi/aws-quota-monitor/internal/poller"
	"github.com/yuxishi/aws-quota-monitor/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// lastPoll keeps the results of the most recent poll run so an API
// trigger can report them.
type lastPoll struct {
	mu      sync.Mutex
	results []poller.Result
}

func (l *lastPoll) set(results []poller.Result) {
	l.mu.Lock()
	l.results = results
	l.mu.Unlock()
}

func (l *lastPoll) get() []poller.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled jobs and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	sched := scheduler.New(cfg.Schedule.JobTimeout, a.stats)
	last := &lastPoll{}

	jobs := []scheduler.Job{
		{
			Name:      "catalog-sync",
			Interval:  cfg.Schedule.CatalogSync,
			Immediate: true,
			Run:       a.syncCatalogs,
		},
		{
			Name:     "poll",
			Interval: cfg.PollWindow(),
			Run: func(ctx context.Context) error {
				results, err := a.pollAll(ctx)
				last.set(results)
				return err
			},
		},
	}
	if cfg.Report.QueueURL != "" && cfg.Schedule.Report > 0 {
		reporter, err := a.newReporter()
		if err != nil {
			return err
		}
		jobs = append(jobs, scheduler.Job{
			Name:     "report",
			Interval: cfg.Schedule.Report,
			Run: func(ctx context.Context) error {
				reporter.Run(ctx)
				return nil
			},
		})
	}
	if cfg.Schedule.AdvisorRefresh > 0 {
		refresher := a.newRefresher()
		jobs = append(jobs, scheduler.Job{
			Name:     "ta-refresh",
			Interval: cfg.Schedule.AdvisorRefresh,
			Run: func(ctx context.Context) error {
				res := refresher.Refresh(ctx)
				if res.Failed > 0 {
					return errors.New("some Trusted Advisor checks failed to refresh")
				}
				return nil
			},
		})
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return err
		}
	}

	regions := make([]string, 0, len(a.regions))
	catalogs := make(map[string]handler.Catalog, len(a.regions))
	for _, r := range a.regions {
		regions = append(regions, r.name)
		catalogs[r.name] = r.catalog
	}
	rows := cache.New[[]handler.QuotaRow](cfg.GetCacheTTL())
	h := handler.New(regions, catalogs, func(ctx context.Context) ([]poller.Result, error) {
		if err := sched.Trigger(ctx, "poll"); err != nil {
			return nil, err
		}
		return last.get(), nil
	}, rows)
	h.SetConfig(cfg)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.stats.Registry, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:    ":" + cfg.GetPort(),
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(ctx) })
	g.Go(func() error {
		rows.Cleanup(ctx, cfg.GetCacheTTL())
		return nil
	})
	g.Go(func() error {
		logrus.Infof("Starting server on http://localhost:%s", cfg.GetPort())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}
