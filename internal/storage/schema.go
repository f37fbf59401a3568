package storage

import "strings"

// Dialect selects the DDL flavour
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Placeholders in the shared schema, replaced per dialect.
var dialectTypes = map[Dialect]*strings.Replacer{
	DialectPostgres: strings.NewReplacer(
		"{{pk}}", "BIGSERIAL PRIMARY KEY",
		"{{ts}}", "TIMESTAMPTZ",
		"{{float}}", "DOUBLE PRECISION",
		"{{bigint}}", "BIGINT",
	),
	DialectSQLite: strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "DATETIME",
		"{{float}}", "REAL",
		"{{bigint}}", "INTEGER",
	),
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		node_id TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL UNIQUE,
		profile_image TEXT NOT NULL DEFAULT '',
		github_created_at {{ts}} NOT NULL,
		total_score INTEGER NOT NULL DEFAULT 0 CHECK (total_score >= 0),
		ranking INTEGER NOT NULL DEFAULT 0,
		percentile {{float}} NOT NULL DEFAULT 100,
		tier TEXT NOT NULL DEFAULT 'IRON',
		last_full_scan_at {{ts}},
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_total_score ON users (total_score DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_users_tier ON users (tier)`,
	`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users (created_at)`,

	`CREATE TABLE IF NOT EXISTS activity_logs (
		id {{pk}},
		user_id {{bigint}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		activity_date {{ts}} NOT NULL,
		commit_count INTEGER NOT NULL DEFAULT 0,
		issue_count INTEGER NOT NULL DEFAULT 0,
		pr_opened_count INTEGER NOT NULL DEFAULT 0,
		pr_merged_count INTEGER NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		diff_commit_count INTEGER NOT NULL DEFAULT 0,
		diff_issue_count INTEGER NOT NULL DEFAULT 0,
		diff_pr_opened_count INTEGER NOT NULL DEFAULT 0,
		diff_pr_merged_count INTEGER NOT NULL DEFAULT 0,
		diff_review_count INTEGER NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL,
		UNIQUE (user_id, activity_date, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_logs_user_date ON activity_logs (user_id, kind, activity_date DESC)`,

	`CREATE TABLE IF NOT EXISTS batch_failures (
		id {{pk}},
		job_name TEXT NOT NULL,
		target_id TEXT NOT NULL,
		error_type TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL,
		retryable BOOLEAN NOT NULL DEFAULT FALSE,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		UNIQUE (job_name, target_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_failures_job ON batch_failures (job_name, updated_at DESC)`,
}

// Schema returns the DDL statements for dialect.
func Schema(d Dialect) []string {
	r, ok := dialectTypes[d]
	if !ok {
		r = dialectTypes[DialectSQLite]
	}
	out := make([]string, len(schemaStatements))
	for i, stmt := range schemaStatements {
		out[i] = r.Replace(stmt)
	}
	return out
}
