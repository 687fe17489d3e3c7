package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
	"golang.org/x/sync/errgroup"
)

// ErrBusy is returned by Trigger when the job is already running.
var ErrBusy = errors.New("job is already running")

type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero uses the scheduler default.
	Timeout time.Duration
	// Immediate runs the job once at start instead of waiting a full
	// interval.
	Immediate bool
	Run       func(ctx context.Context) error
}

type job struct {
	Job
	running sync.Mutex
}

// Scheduler runs jobs on fixed intervals. A job never overlaps itself: a
// tick or trigger that arrives while it runs is skipped.
type Scheduler struct {
	jobs           map[string]*job
	order          []string
	defaultTimeout time.Duration
	stats          *observability.Metrics
}

func New(defaultTimeout time.Duration, stats *observability.Metrics) *Scheduler {
	return &Scheduler{jobs: map[string]*job{}, defaultTimeout: defaultTimeout, stats: stats}
}

func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.New("scheduler: job needs a name and a run func")
	}
	if j.Interval <= 0 {
		return fmt.Errorf("scheduler: job %s needs a positive interval", j.Name)
	}
	if _, ok := s.jobs[j.Name]; ok {
		return fmt.Errorf("scheduler: duplicate job %s", j.Name)
	}
	s.jobs[j.Name] = &job{Job: j}
	s.order = append(s.order, j.Name)
	return nil
}

func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.order...)
}

// Start runs every job until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.order {
		j := s.jobs[name]
		g.Go(func() error {
			s.loop(ctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	if j.Immediate {
		_ = s.run(ctx, j)
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.run(ctx, j)
		}
	}
}

// Trigger runs the named job now, outside its schedule. It fails with
// ErrBusy if the job is running.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j *job) error {
	ctx = logging.WithFields(ctx, logging.Fields{RunID: uuid.NewString(), Component: j.Name})
	log := logging.Entry(ctx)

	if !j.running.TryLock() {
		log.Warnf("%s is still running, skipping this run", j.Name)
		s.record(j.Name, "skipped", 0)
		return ErrBusy
	}
	defer j.running.Unlock()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	log.Infof("starting %s", j.Name)
	err := j.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		log.Errorf("%s failed after %s: %v", j.Name, elapsed.Round(time.Millisecond), err)
	} else {
		log.Infof("%s finished in %s", j.Name, elapsed.Round(time.Millisecond))
	}
	s.record(j.Name, observability.Result(err), elapsed)
	return err
}

func (s *Scheduler) record(name, result string, elapsed time.Duration) {
	if s.stats == nil {
		return
	}
	s.stats.JobRuns.WithLabelValues(name, result).Inc()
	if result != "skipped" {
		s.stats.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}
