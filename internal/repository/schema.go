package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements creates the control-plane tables. Statements are
// idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id         VARCHAR(36) PRIMARY KEY,
		name       VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS environments (
		id                     VARCHAR(36) PRIMARY KEY,
		tenant_id              VARCHAR(36) NOT NULL REFERENCES tenants(id),
		cloud                  VARCHAR(32) NOT NULL DEFAULT 'aws',
		region                 VARCHAR(32) NOT NULL,
		engine                 VARCHAR(64) NOT NULL DEFAULT 'emr_on_eks',
		provisioning_mode      VARCHAR(32) NOT NULL DEFAULT 'full',
		status                 VARCHAR(32) NOT NULL DEFAULT 'provisioning',
		customer_role_arn      VARCHAR(1024) NOT NULL,
		eks_cluster_arn        VARCHAR(1024),
		eks_namespace          VARCHAR(255),
		emr_virtual_cluster_id VARCHAR(255),
		warm_pool_enabled      BOOLEAN NOT NULL DEFAULT FALSE,
		max_concurrent_runs    INTEGER NOT NULL DEFAULT 10,
		max_vcpu               INTEGER NOT NULL DEFAULT 256,
		max_run_seconds        INTEGER NOT NULL DEFAULT 7200,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS provisioning_operations (
		id              VARCHAR(36) PRIMARY KEY,
		environment_id  VARCHAR(36) NOT NULL REFERENCES environments(id),
		state           VARCHAR(64) NOT NULL DEFAULT 'queued',
		step            VARCHAR(64) NOT NULL DEFAULT 'queued',
		message         TEXT,
		logs_uri        VARCHAR(1024),
		started_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ended_at        TIMESTAMPTZ,
		idempotency_key VARCHAR(255) NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id                 VARCHAR(36) PRIMARY KEY,
		environment_id     VARCHAR(36) NOT NULL REFERENCES environments(id),
		name               VARCHAR(255) NOT NULL,
		artifact_uri       VARCHAR(2048) NOT NULL,
		artifact_digest    VARCHAR(255) NOT NULL,
		entrypoint         VARCHAR(1024) NOT NULL,
		args_json          JSONB NOT NULL DEFAULT '[]',
		spark_conf_json    JSONB NOT NULL DEFAULT '{}',
		retry_max_attempts INTEGER NOT NULL DEFAULT 1,
		timeout_seconds    INTEGER NOT NULL DEFAULT 7200,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id                        VARCHAR(36) PRIMARY KEY,
		job_id                    VARCHAR(36) NOT NULL REFERENCES jobs(id),
		environment_id            VARCHAR(36) NOT NULL REFERENCES environments(id),
		state                     VARCHAR(32) NOT NULL DEFAULT 'queued',
		attempt                   INTEGER NOT NULL DEFAULT 1,
		idempotency_key           VARCHAR(255) NOT NULL,
		requested_resources_json  JSONB NOT NULL DEFAULT '{}',
		args_overrides_json       JSONB NOT NULL DEFAULT '[]',
		spark_conf_overrides_json JSONB NOT NULL DEFAULT '{}',
		timeout_seconds           INTEGER NOT NULL DEFAULT 7200,
		emr_job_run_id            VARCHAR(255),
		cancellation_requested    BOOLEAN NOT NULL DEFAULT FALSE,
		log_group                 VARCHAR(1024),
		log_stream_prefix         VARCHAR(1024),
		driver_log_uri            VARCHAR(2048),
		spark_ui_uri              VARCHAR(2048),
		error_message             TEXT,
		started_at                TIMESTAMPTZ,
		ended_at                  TIMESTAMPTZ,
		created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_runs_job_idempotency UNIQUE (job_id, idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id                        VARCHAR(36) PRIMARY KEY,
		tenant_id                 VARCHAR(36) NOT NULL REFERENCES tenants(id),
		run_id                    VARCHAR(36) NOT NULL UNIQUE REFERENCES runs(id),
		vcpu_seconds              BIGINT NOT NULL DEFAULT 0,
		memory_gb_seconds         BIGINT NOT NULL DEFAULT 0,
		estimated_cost_usd_micros BIGINT NOT NULL DEFAULT 0,
		recorded_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id                  VARCHAR(36) PRIMARY KEY,
		tenant_id           VARCHAR(36),
		actor               VARCHAR(255) NOT NULL,
		action              VARCHAR(255) NOT NULL,
		source_ip           VARCHAR(255),
		entity_type         VARCHAR(64) NOT NULL,
		entity_id           VARCHAR(64) NOT NULL,
		details_json        JSONB NOT NULL DEFAULT '{}',
		aws_request_id      VARCHAR(255),
		cloudtrail_event_id VARCHAR(255),
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_records (
		id            VARCHAR(36) PRIMARY KEY,
		scope         VARCHAR(255) NOT NULL,
		key           VARCHAR(255) NOT NULL,
		fingerprint   VARCHAR(128) NOT NULL,
		response_json TEXT NOT NULL,
		status_code   INTEGER NOT NULL,
		resource_type VARCHAR(64),
		resource_id   VARCHAR(64),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_idempotency_scope_key UNIQUE (scope, key)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_runs_env_state ON runs (environment_id, state)`,
	`CREATE INDEX IF NOT EXISTS ix_runs_state_created ON runs (state, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_runs_state_updated ON runs (state, updated_at)`,
	`CREATE INDEX IF NOT EXISTS ix_provisioning_state_created ON provisioning_operations (state, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_usage_tenant_recorded ON usage_records (tenant_id, recorded_at)`,
}

// InitSchema creates all tables and indexes if they do not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
