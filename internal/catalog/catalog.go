package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/observability"
	"github.com/yuxishi/aws-quota-monitor/internal/quota"
	"golang.org/x/sync/errgroup"
)

// Store persists the service monitoring table and the quota catalog. Quota
// rows are keyed by (ServiceCode, QuotaCode) and PutQuotas upserts.
type Store interface {
	GetService(ctx context.Context, serviceCode string) (model.ServiceStatus, bool, error)
	PutService(ctx context.Context, status model.ServiceStatus) error
	ListServices(ctx context.Context) ([]model.ServiceStatus, error)

	QuotaEntries(ctx context.Context, serviceCode string) ([]model.CatalogEntry, error)
	PutQuotas(ctx context.Context, entries []model.CatalogEntry) error
	DeleteQuotas(ctx context.Context, serviceCode string, quotaCodes []string) error
}

// Discoverer returns the quotas of a service that support utilization
// monitoring, and those it could not verify this run.
type Discoverer interface {
	Discover(ctx context.Context, serviceCode string) (quota.Validation, error)
}

// ErrUnverified is returned by SyncService when discovery could not verify
// every quota. Accepted quotas are still upserted but nothing is pruned.
var ErrUnverified = errors.New("quotas left unverified")

type Options struct {
	// Services are the service codes the catalog may hold.
	Services    []string
	Retention   time.Duration
	Concurrency int
}

// Manager keeps the quota catalog of one region in line with the service
// monitoring flags and with what discovery finds upstream.
type Manager struct {
	store      Store
	discoverer Discoverer
	opts       Options
	stats      *observability.Metrics
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(store Store, discoverer Discoverer, opts Options, stats *observability.Metrics) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Manager{
		store:      store,
		discoverer: discoverer,
		opts:       opts,
		stats:      stats,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lock serializes catalog writes for one service.
func (m *Manager) lock(serviceCode string) func() {
	m.mu.Lock()
	l, ok := m.locks[serviceCode]
	if !ok {
		l = &sync.Mutex{}
		m.locks[serviceCode] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Manager) supported(serviceCode string) error {
	if !slices.Contains(m.opts.Services, serviceCode) {
		return &quota.IncorrectConfigurationError{Msg: fmt.Sprintf("service %s is not supported", serviceCode)}
	}
	return nil
}

// EnsureServices creates a monitored row for every configured service that
// has none. Existing monitoring flags are never changed.
func (m *Manager) EnsureServices(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for _, svc := range m.opts.Services {
		g.Go(func() error {
			_, found, err := m.store.GetService(gctx, svc)
			if err == nil && !found {
				err = m.store.PutService(gctx, model.ServiceStatus{ServiceCode: svc, Monitored: true})
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("ensure service %s: %w", svc, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Services returns the rows of the service monitoring table.
func (m *Manager) Services(ctx context.Context) ([]model.ServiceStatus, error) {
	return m.store.ListServices(ctx)
}

// MonitoredServices returns the codes of the services flagged as monitored.
func (m *Manager) MonitoredServices(ctx context.Context) ([]string, error) {
	all, err := m.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	var codes []string
	for _, s := range all {
		if s.Monitored {
			codes = append(codes, s.ServiceCode)
		}
	}
	return codes, nil
}

// SetMonitoring flips the monitoring flag of a service. A change of flag
// clears the service's catalog rows, and turning monitoring on rediscovers
// them.
func (m *Manager) SetMonitoring(ctx context.Context, serviceCode string, monitored bool) error {
	if err := m.supported(serviceCode); err != nil {
		return err
	}
	ctx = logging.WithFields(ctx, logging.Fields{Component: "catalog", Service: serviceCode})

	cur, found, err := m.store.GetService(ctx, serviceCode)
	if err != nil {
		return fmt.Errorf("get service %s: %w", serviceCode, err)
	}
	if err := m.store.PutService(ctx, model.ServiceStatus{ServiceCode: serviceCode, Monitored: monitored}); err != nil {
		return fmt.Errorf("put service %s: %w", serviceCode, err)
	}

	switch {
	case !found && monitored:
		_, err = m.SyncService(ctx, serviceCode)
	case found && cur.Monitored == monitored:
		logging.Entry(ctx).Debugf("monitoring already %t", monitored)
	default:
		if err = m.RemoveService(ctx, serviceCode); err == nil && monitored {
			_, err = m.SyncService(ctx, serviceCode)
		}
	}
	return err
}

// SyncService discovers the quotas of a service, upserts them and prunes
// rows for quotas no longer discovered. Rows are only pruned after a
// discovery that gave a verdict on every quota. It returns the number of
// quotas upserted.
func (m *Manager) SyncService(ctx context.Context, serviceCode string) (n int, err error) {
	if err := m.supported(serviceCode); err != nil {
		return 0, err
	}
	unlock := m.lock(serviceCode)
	defer unlock()

	ctx = logging.WithFields(ctx, logging.Fields{Component: "catalog", Service: serviceCode})
	log := logging.Entry(ctx)
	defer func() {
		m.stats.CatalogSyncTotal.WithLabelValues(serviceCode, observability.Result(err)).Inc()
	}()

	found, err := m.discoverer.Discover(ctx, serviceCode)
	if err != nil {
		return 0, fmt.Errorf("discover %s: %w", serviceCode, err)
	}
	quotas := found.Accepted

	now := m.now().UTC()
	expiry := now.Add(m.opts.Retention).Unix()
	entries := make([]model.CatalogEntry, 0, len(quotas))
	keep := make(map[string]bool, len(quotas))
	for _, q := range quotas {
		q.ServiceCode = serviceCode
		entries = append(entries, model.CatalogEntry{Quota: q, LastMonitored: now, ExpiryTime: expiry})
		keep[q.QuotaCode] = true
	}
	if len(entries) > 0 {
		if err := m.store.PutQuotas(ctx, entries); err != nil {
			return 0, fmt.Errorf("put quotas for %s: %w", serviceCode, err)
		}
	}

	if !found.Complete() {
		log.Warnf("%d quotas unverified, existing rows kept until they expire", len(found.Unverified))
		return len(entries), fmt.Errorf("sync %s: %d %w", serviceCode, len(found.Unverified), ErrUnverified)
	}

	existing, err := m.store.QuotaEntries(ctx, serviceCode)
	if err != nil {
		return len(entries), fmt.Errorf("list quotas for %s: %w", serviceCode, err)
	}
	var stale []string
	for _, e := range existing {
		if !keep[e.QuotaCode] {
			stale = append(stale, e.QuotaCode)
		}
	}
	if len(stale) > 0 {
		if err := m.store.DeleteQuotas(ctx, serviceCode, stale); err != nil {
			return len(entries), fmt.Errorf("prune quotas for %s: %w", serviceCode, err)
		}
		m.stats.QuotasEvicted.WithLabelValues(serviceCode).Add(float64(len(stale)))
		log.Warnf("pruned %d quotas no longer discovered: %v", len(stale), stale)
	}

	log.Infof("catalog holds %d quotas", len(entries))
	return len(entries), nil
}

// RemoveService deletes every catalog row of a service.
func (m *Manager) RemoveService(ctx context.Context, serviceCode string) error {
	unlock := m.lock(serviceCode)
	defer unlock()

	existing, err := m.store.QuotaEntries(ctx, serviceCode)
	if err != nil {
		return fmt.Errorf("list quotas for %s: %w", serviceCode, err)
	}
	if len(existing) == 0 {
		return nil
	}
	codes := make([]string, len(existing))
	for i, e := range existing {
		codes[i] = e.QuotaCode
	}
	if err := m.store.DeleteQuotas(ctx, serviceCode, codes); err != nil {
		return fmt.Errorf("delete quotas for %s: %w", serviceCode, err)
	}
	m.stats.QuotasEvicted.WithLabelValues(serviceCode).Add(float64(len(codes)))
	logging.Entry(ctx).Infof("removed %d quotas of %s from the catalog", len(codes), serviceCode)
	return nil
}

// Sync brings every configured service up to date: monitored services are
// rediscovered, unmonitored ones emptied. Services are handled concurrently
// and a failure in one does not stop the others.
func (m *Manager) Sync(ctx context.Context) error {
	ctx = logging.WithFields(ctx, logging.Fields{Component: "catalog"})
	if err := m.EnsureServices(ctx); err != nil {
		logging.Entry(ctx).Errorf("ensuring service rows: %v", err)
	}
	statuses, err := m.store.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for _, st := range statuses {
		if m.supported(st.ServiceCode) != nil {
			continue
		}
		g.Go(func() error {
			var err error
			if st.Monitored {
				_, err = m.SyncService(gctx, st.ServiceCode)
			} else {
				err = m.RemoveService(gctx, st.ServiceCode)
			}
			if err != nil {
				logging.Entry(gctx).WithField("service", st.ServiceCode).Errorf("catalog sync failed: %v", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Entries returns the catalog rows of a service.
func (m *Manager) Entries(ctx context.Context, serviceCode string) ([]model.CatalogEntry, error) {
	return m.store.QuotaEntries(ctx, serviceCode)
}

// QuotasForService returns the quotas to poll for a service.
func (m *Manager) QuotasForService(ctx context.Context, serviceCode string) ([]model.Quota, error) {
	entries, err := m.store.QuotaEntries(ctx, serviceCode)
	if err != nil {
		return nil, err
	}
	quotas := make([]model.Quota, len(entries))
	for i, e := range entries {
		quotas[i] = e.Quota
	}
	return quotas, nil
}
