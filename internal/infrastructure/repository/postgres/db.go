package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockKey int64 = 2026101901

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the ranking tables. DDL is serialised across api and worker
// startups with an advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	context_id TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS anchors (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	is_focus_term BOOLEAN NOT NULL DEFAULT FALSE,
	project_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_order INTEGER NOT NULL,
	text TEXT NOT NULL,
	embedding JSONB,
	embedding_status TEXT NOT NULL DEFAULT 'pending',
	is_glossary BOOLEAN NOT NULL DEFAULT FALSE,
	glossary_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	glossary_boost DOUBLE PRECISION NOT NULL DEFAULT 0,
	weak_glossary BOOLEAN NOT NULL DEFAULT FALSE,
	anchor_id TEXT REFERENCES anchors(id) ON DELETE SET NULL,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	fingerprint TEXT NOT NULL DEFAULT '',
	context_id TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_order);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);
CREATE INDEX IF NOT EXISTS idx_chunks_context ON chunks(context_id);

CREATE TABLE IF NOT EXISTS anchor_weights (
	caller_id TEXT NOT NULL,
	anchor_slug TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (caller_id, anchor_slug)
);

CREATE TABLE IF NOT EXISTS reflection_notes (
	id TEXT PRIMARY KEY,
	caller_id TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reflection_notes_caller ON reflection_notes(caller_id, created_at DESC);

CREATE TABLE IF NOT EXISTS caller_preferences (
	caller_id TEXT PRIMARY KEY,
	embedding JSONB NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// placeholders renders "$from, $from+1, ..." for n values.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}
