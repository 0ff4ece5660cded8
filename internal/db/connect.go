package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:quizforge.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/quizforge?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := EnsureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  variant TEXT NOT NULL,
  text TEXT NOT NULL,
  choices_json TEXT NOT NULL DEFAULT 'null',
  correct_index INTEGER NOT NULL DEFAULT 0,
  passage TEXT NOT NULL DEFAULT '',
  child_ids_json TEXT NOT NULL DEFAULT 'null',
  module TEXT NOT NULL,
  org_id TEXT NOT NULL DEFAULT '',        -- '' means globally shared
  tags_json TEXT NOT NULL DEFAULT 'null',
  difficulty TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS exam_instances (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL DEFAULT '',
  module TEXT NOT NULL DEFAULT '',
  assigned_user_id TEXT NOT NULL DEFAULT '',
  sequence_json TEXT NOT NULL,
  mapping_json TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL DEFAULT 0,
  finished_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  org_id TEXT NOT NULL DEFAULT '',
  module TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  question_ids_json TEXT NOT NULL,
  answers_json TEXT NOT NULL DEFAULT 'null',
  score INTEGER NOT NULL DEFAULT 0,
  max_score INTEGER NOT NULL DEFAULT 0,
  percentage INTEGER NOT NULL DEFAULT 0,
  passed INTEGER NOT NULL DEFAULT 0,
  started_at INTEGER NOT NULL,
  finished_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_questions_pool ON questions(module, org_id);
CREATE INDEX IF NOT EXISTS idx_attempts_exam ON attempts(exam_id, started_at);
CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id, org_id, module, started_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  variant TEXT NOT NULL,
  text TEXT NOT NULL,
  choices_json TEXT NOT NULL DEFAULT 'null',
  correct_index INTEGER NOT NULL DEFAULT 0,
  passage TEXT NOT NULL DEFAULT '',
  child_ids_json TEXT NOT NULL DEFAULT 'null',
  module TEXT NOT NULL,
  org_id TEXT NOT NULL DEFAULT '',
  tags_json TEXT NOT NULL DEFAULT 'null',
  difficulty TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS exam_instances (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL DEFAULT '',
  module TEXT NOT NULL DEFAULT '',
  assigned_user_id TEXT NOT NULL DEFAULT '',
  sequence_json TEXT NOT NULL,
  mapping_json TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  expires_at BIGINT NOT NULL DEFAULT 0,
  finished_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  org_id TEXT NOT NULL DEFAULT '',
  module TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  question_ids_json TEXT NOT NULL,
  answers_json TEXT NOT NULL DEFAULT 'null',
  score INTEGER NOT NULL DEFAULT 0,
  max_score INTEGER NOT NULL DEFAULT 0,
  percentage INTEGER NOT NULL DEFAULT 0,
  passed INTEGER NOT NULL DEFAULT 0,
  started_at BIGINT NOT NULL,
  finished_at BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_questions_pool ON questions(module, org_id);
CREATE INDEX IF NOT EXISTS idx_attempts_exam ON attempts(exam_id, started_at);
CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id, org_id, module, started_at);
`
