package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_profiles",
		SQL: `CREATE TABLE IF NOT EXISTS profiles (
  id              UUID        PRIMARY KEY,
  email           TEXT,
  refresh_token   TEXT,
  target_sheet_id TEXT,
  monthly_limit   INT         NOT NULL DEFAULT 100 CHECK (monthly_limit >= 0),
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_usage_logs",
		SQL: `CREATE TABLE IF NOT EXISTS usage_logs (
  id                 UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  user_id            UUID        NOT NULL,
  file_name          TEXT        NOT NULL,
  file_size          BIGINT      NOT NULL CHECK (file_size >= 0),
  status             TEXT        NOT NULL CHECK (status IN ('processing', 'success', 'failed')),
  extracted_data     JSONB,
  error_message      TEXT,
  processing_time_ms BIGINT,
  tokens_used        INT,
  archive_path       TEXT,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  finalized_at       TIMESTAMPTZ
);`,
	},
	{
		Name: "create_index_usage_logs_user_id_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_usage_logs_user_id_status ON usage_logs (user_id, status);`,
	},
	{
		Name: "create_index_usage_logs_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_usage_logs_created_at ON usage_logs (created_at);`,
	},
}

// EnsureMigrated checks whether the usage_logs sentinel table exists and
// runs the schema steps if it does not. Steps are individually idempotent,
// so a partially applied run can be resumed by starting the service again.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	start := time.Now()

	var exists bool
	query := "SELECT to_regclass('public.usage_logs') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logger.Info("schema already exists, skipping migration",
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logger.Error("migration step failed",
				zap.String("migration_step", step.Name),
				zap.Error(err))
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		logger.Info("migration step applied",
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()))
	}

	logger.Info("migration complete",
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
