package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

// Store keeps the service table, quota catalog and usage report in a local
// SQLite database. Catalog data is partitioned by region.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS services (
	region TEXT NOT NULL,
	service_code TEXT NOT NULL,
	monitored INTEGER NOT NULL,
	PRIMARY KEY (region, service_code)
);
CREATE TABLE IF NOT EXISTS quotas (
	region TEXT NOT NULL,
	service_code TEXT NOT NULL,
	quota_code TEXT NOT NULL,
	quota BLOB NOT NULL,
	last_monitored INTEGER NOT NULL,
	expiry_time INTEGER NOT NULL,
	PRIMARY KEY (region, service_code, quota_code)
);
CREATE TABLE IF NOT EXISTS reports (
	message_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	time_stamp TEXT NOT NULL,
	region TEXT NOT NULL,
	source TEXT NOT NULL,
	service TEXT NOT NULL,
	resource TEXT NOT NULL,
	limit_code TEXT NOT NULL,
	limit_name TEXT NOT NULL,
	current_usage TEXT NOT NULL,
	limit_amount TEXT NOT NULL,
	status TEXT NOT NULL,
	expiry_time TEXT NOT NULL
);
`

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Region returns the catalog view of one region.
func (s *Store) Region(region string) *RegionStore {
	return &RegionStore{db: s.db, region: region}
}

// PurgeExpired removes catalog rows and report items whose expiry time has
// passed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quotas WHERE expiry_time < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge quotas: %w", err)
	}
	n, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM reports WHERE CAST(expiry_time AS INTEGER) < ?`, now.Unix())
	if err != nil {
		return n, fmt.Errorf("purge reports: %w", err)
	}
	m, _ := res.RowsAffected()
	return n + m, nil
}

// PutReport upserts a usage report row keyed by message id.
func (s *Store) PutReport(ctx context.Context, item model.ReportItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (message_id, account_id, time_stamp, region, source, service, resource,
			limit_code, limit_name, current_usage, limit_amount, status, expiry_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.MessageID, item.AccountID, item.TimeStamp, item.Region, item.Source, item.Service, item.Resource,
		item.LimitCode, item.LimitName, item.CurrentUsage, item.LimitAmount, string(item.Status), item.ExpiryTime,
	)
	if err != nil {
		return fmt.Errorf("put report %s: %w", item.MessageID, err)
	}
	return nil
}

// Reports returns every report row, newest first.
func (s *Store) Reports(ctx context.Context) ([]model.ReportItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, account_id, time_stamp, region, source, service, resource,
			limit_code, limit_name, current_usage, limit_amount, status, expiry_time
		 FROM reports ORDER BY time_stamp DESC, message_id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var items []model.ReportItem
	for rows.Next() {
		var it model.ReportItem
		var status string
		if err := rows.Scan(&it.MessageID, &it.AccountID, &it.TimeStamp, &it.Region, &it.Source, &it.Service,
			&it.Resource, &it.LimitCode, &it.LimitName, &it.CurrentUsage, &it.LimitAmount, &status, &it.ExpiryTime); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		it.Status = model.Status(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

// RegionStore is the service table and quota catalog of one region.
type RegionStore struct {
	db     *sql.DB
	region string
}

func (r *RegionStore) GetService(ctx context.Context, serviceCode string) (model.ServiceStatus, bool, error) {
	var monitored bool
	err := r.db.QueryRowContext(ctx,
		`SELECT monitored FROM services WHERE region = ? AND service_code = ?`,
		r.region, serviceCode,
	).Scan(&monitored)
	if err == sql.ErrNoRows {
		return model.ServiceStatus{}, false, nil
	}
	if err != nil {
		return model.ServiceStatus{}, false, fmt.Errorf("get service %s: %w", serviceCode, err)
	}
	return model.ServiceStatus{ServiceCode: serviceCode, Monitored: monitored}, true, nil
}

func (r *RegionStore) PutService(ctx context.Context, status model.ServiceStatus) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO services (region, service_code, monitored) VALUES (?, ?, ?)`,
		r.region, status.ServiceCode, status.Monitored,
	)
	if err != nil {
		return fmt.Errorf("put service %s: %w", status.ServiceCode, err)
	}
	return nil
}

func (r *RegionStore) ListServices(ctx context.Context) ([]model.ServiceStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT service_code, monitored FROM services WHERE region = ? ORDER BY service_code`, r.region)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.ServiceStatus
	for rows.Next() {
		var st model.ServiceStatus
		if err := rows.Scan(&st.ServiceCode, &st.Monitored); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *RegionStore) QuotaEntries(ctx context.Context, serviceCode string) ([]model.CatalogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT quota, last_monitored, expiry_time FROM quotas
		 WHERE region = ? AND service_code = ? ORDER BY quota_code`,
		r.region, serviceCode,
	)
	if err != nil {
		return nil, fmt.Errorf("query quotas for %s: %w", serviceCode, err)
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		var (
			body          []byte
			lastMonitored int64
			e             model.CatalogEntry
		)
		if err := rows.Scan(&body, &lastMonitored, &e.ExpiryTime); err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		if err := json.Unmarshal(body, &e.Quota); err != nil {
			return nil, fmt.Errorf("decode quota: %w", err)
		}
		e.LastMonitored = time.Unix(lastMonitored, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutQuotas upserts entries in one transaction.
func (r *RegionStore) PutQuotas(ctx context.Context, entries []model.CatalogEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO quotas (region, service_code, quota_code, quota, last_monitored, expiry_time)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		body, err := json.Marshal(e.Quota)
		if err != nil {
			return fmt.Errorf("encode quota %s: %w", e.QuotaCode, err)
		}
		if _, err := stmt.ExecContext(ctx, r.region, e.ServiceCode, e.QuotaCode, body, e.LastMonitored.Unix(), e.ExpiryTime); err != nil {
			return fmt.Errorf("put quota %s/%s: %w", e.ServiceCode, e.QuotaCode, err)
		}
	}
	return tx.Commit()
}

func (r *RegionStore) DeleteQuotas(ctx context.Context, serviceCode string, quotaCodes []string) error {
	if len(quotaCodes) == 0 {
		return nil
	}
	args := make([]any, 0, len(quotaCodes)+2)
	args = append(args, r.region, serviceCode)
	for _, c := range quotaCodes {
		args = append(args, c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(quotaCodes)), ",")
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM quotas WHERE region = ? AND service_code = ? AND quota_code IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete quotas for %s: %w", serviceCode, err)
	}
	return nil
}
