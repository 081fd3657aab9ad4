package repository

// Statements run in order on every start. They must stay valid for both
// SQLite and PostgreSQL.

// datasets holds one row per upload; dataset_records holds the records in
// upload order. username_key is the lower-cased username used by
// single-account checks.
const schemaDatasets = `
CREATE TABLE IF NOT EXISTS datasets (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    format TEXT NOT NULL,
    record_count INTEGER NOT NULL,
    uploaded_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_datasets_uploaded ON datasets(tenant_id, uploaded_at);

CREATE TABLE IF NOT EXISTS dataset_records (
    tenant_id TEXT NOT NULL,
    dataset_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    username_key TEXT NOT NULL,
    record TEXT NOT NULL,
    PRIMARY KEY (tenant_id, dataset_id, position)
);

CREATE INDEX IF NOT EXISTS idx_dataset_records_username ON dataset_records(tenant_id, dataset_id, username_key);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight INTEGER NOT NULL DEFAULT 1,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDatasets,
		schemaRuleConfigs,
	}
}
