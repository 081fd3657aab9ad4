// Package domain defines the core interfaces and types for fakeguard.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
// Findings are never persisted; only the uploaded record source and rule
// configuration are.
type Repository interface {
	// Dataset operations
	SaveDataset(ctx context.Context, tenantID string, ds *Dataset) error
	GetDataset(ctx context.Context, tenantID string, datasetID string) (*Dataset, error)
	GetLatestDataset(ctx context.Context, tenantID string) (*Dataset, error)
	LatestDatasetID(ctx context.Context, tenantID string) (string, error)
	// FindLatestRecord returns the first record in the tenant's latest
	// dataset whose username matches case-insensitively.
	FindLatestRecord(ctx context.Context, tenantID string, username string) (AccountRecord, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// KeepDatasets is how many uploads are retained per tenant; older ones
	// are deleted when a new one is saved. Zero keeps everything.
	KeepDatasets int

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
