// Package repository persists uploaded datasets and custom rule
// configurations in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository over database/sql. Queries are
// written with ? placeholders and rebound for PostgreSQL.
type SQLRepository struct {
	db           *sql.DB
	driver       string
	keepDatasets int
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:           db,
		driver:       cfg.Driver,
		keepDatasets: cfg.KeepDatasets,
	}

	for _, schema := range AllSchemas() {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return repo, nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

func usernameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SaveDataset stores the dataset and its records in one transaction, then
// deletes the tenant's uploads beyond the retention limit.
func (r *SQLRepository) SaveDataset(ctx context.Context, tenantID string, ds *domain.Dataset) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if ds == nil || ds.ID == "" {
		return fmt.Errorf("%w: dataset ID is required", ErrInvalidInput)
	}

	uploadedAt := ds.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO datasets (id, tenant_id, format, record_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
	`), ds.ID, tenantID, ds.Format, len(ds.Records), uploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}

	if len(ds.Records) > 0 {
		stmt, err := tx.PrepareContext(ctx, r.rebind(`
			INSERT INTO dataset_records (tenant_id, dataset_id, position, username_key, record)
			VALUES (?, ?, ?, ?, ?)
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, rec := range ds.Records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode record %d: %w", i, err)
			}
			if _, err := stmt.ExecContext(ctx, tenantID, ds.ID, i, usernameKey(rec.Username()), string(data)); err != nil {
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
		}
	}

	if r.keepDatasets > 0 {
		if err := r.prune(ctx, tx, tenantID); err != nil {
			return fmt.Errorf("failed to prune datasets: %w", err)
		}
	}

	return tx.Commit()
}

// newestFirst orders a tenant's datasets so that the first row is the one
// every "latest" lookup and retention agree on.
const newestFirst = "ORDER BY uploaded_at DESC, id DESC"

// prune deletes every dataset of tenantID older than the newest keepDatasets.
func (r *SQLRepository) prune(ctx context.Context, tx *sql.Tx, tenantID string) error {
	rows, err := tx.QueryContext(ctx, r.rebind(`
		SELECT id FROM datasets WHERE tenant_id = ? `+newestFirst), tenantID)
	if err != nil {
		return err
	}

	var stale []string
	for n := 0; rows.Next(); n++ {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if n >= r.keepDatasets {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM dataset_records WHERE tenant_id = ? AND dataset_id = ?`), tenantID, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM datasets WHERE tenant_id = ? AND id = ?`), tenantID, id); err != nil {
			return err
		}
	}
	return nil
}

// GetDataset loads a dataset and its records in upload order.
func (r *SQLRepository) GetDataset(ctx context.Context, tenantID string, datasetID string) (*domain.Dataset, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, tenant_id, format, uploaded_at
		FROM datasets
		WHERE tenant_id = ? AND id = ?
	`), tenantID, datasetID)

	return r.loadDataset(ctx, row)
}

// GetLatestDataset loads the tenant's most recent upload.
func (r *SQLRepository) GetLatestDataset(ctx context.Context, tenantID string) (*domain.Dataset, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, tenant_id, format, uploaded_at
		FROM datasets
		WHERE tenant_id = ?
		`+newestFirst+`
		LIMIT 1
	`), tenantID)

	return r.loadDataset(ctx, row)
}

// LatestDatasetID returns the ID of the tenant's most recent upload without
// loading its records.
func (r *SQLRepository) LatestDatasetID(ctx context.Context, tenantID string) (string, error) {
	if err := requireTenant(tenantID); err != nil {
		return "", err
	}

	var id string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id FROM datasets WHERE tenant_id = ? `+newestFirst+` LIMIT 1
	`), tenantID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (r *SQLRepository) loadDataset(ctx context.Context, row *sql.Row) (*domain.Dataset, error) {
	var ds domain.Dataset
	err := row.Scan(&ds.ID, &ds.TenantID, &ds.Format, &ds.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT record FROM dataset_records
		WHERE tenant_id = ? AND dataset_id = ?
		ORDER BY position
	`), ds.TenantID, ds.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ds.Records = []domain.AccountRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec domain.AccountRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record in dataset %s: %w", ds.ID, err)
		}
		ds.Records = append(ds.Records, rec)
	}

	return &ds, rows.Err()
}

// FindLatestRecord looks up one account in the tenant's newest upload
// without loading the rest of the dataset.
func (r *SQLRepository) FindLatestRecord(ctx context.Context, tenantID string, username string) (domain.AccountRecord, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	key := usernameKey(username)
	if key == "" {
		return nil, ErrNotFound
	}

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT record FROM dataset_records
		WHERE tenant_id = ? AND username_key = ? AND dataset_id = (
			SELECT id FROM datasets WHERE tenant_id = ? `+newestFirst+` LIMIT 1
		)
		ORDER BY position
		LIMIT 1
	`), tenantID, key, tenantID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec domain.AccountRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return rec, nil
}

// SaveRuleConfig inserts a rule, or updates it if the same ID and version
// already exist for the tenant.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	bands, err := json.Marshal(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight, boolInt(rule.Enabled),
		now, now,
	)
	return err
}

const ruleColumns = `id, tenant_id, name, description, version, expression, bands, weight, enabled`

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*domain.RuleConfig, error) {
	var (
		cfg         domain.RuleConfig
		description sql.NullString
		bands       string
		enabled     int
	)
	if err := s.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &description,
		&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &cfg.Bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands for rule %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}

// GetRuleConfig returns the newest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT `+ruleColumns+`
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`), tenantID, ruleID)

	cfg, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cfg, err
}

// ListRuleConfigs returns the tenant's enabled rules ordered by ID then version.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+ruleColumns+`
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id, version
	`), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
