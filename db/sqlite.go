package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"quizzer-server/models"
)

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS tests (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	questions_json TEXT NOT NULL,
	attempts_json TEXT NOT NULL DEFAULT '[]',
	file_content TEXT
);
CREATE INDEX IF NOT EXISTS idx_tests_created_at ON tests(created_at);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	source TEXT NOT NULL,
	target TEXT,
	message TEXT NOT NULL
);
`

// SQLiteStore keeps tests in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the SQLite database at dsn and ensures the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers

	if _, err := db.ExecContext(ctx, schemaSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("error executing schema SQL: %w", err)
	}
	log.Println("Successfully opened SQLite database")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Add(ctx context.Context, t models.Test) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tests (id, name, created_at, questions_json, attempts_json, file_content)
		VALUES (:id, :name, :created_at, :questions_json, :attempts_json, :file_content)
		ON CONFLICT(id) DO NOTHING`, row)
	if err != nil {
		return fmt.Errorf("failed to insert test %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("add %s: %w", t.ID, ErrAlreadyExists)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Test, error) {
	var row testRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, created_at, questions_json, attempts_json, file_content
		FROM tests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Test{}, ErrNotFound
	}
	if err != nil {
		return models.Test{}, fmt.Errorf("failed to query test %s: %w", id, err)
	}
	return row.toTest()
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch models.TestPatch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin update of %s: %w", id, err)
	}
	defer tx.Rollback()

	var row testRow
	err = tx.GetContext(ctx, &row, `
		SELECT id, name, created_at, questions_json, attempts_json, file_content
		FROM tests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to query test %s: %w", id, err)
	}
	t, err := row.toTest()
	if err != nil {
		return err
	}
	patch.Apply(&t)
	if row, err = toRow(t); err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, `
		UPDATE tests SET name = :name, questions_json = :questions_json,
			attempts_json = :attempts_json, file_content = :file_content
		WHERE id = :id`, row); err != nil {
		return fmt.Errorf("failed to update test %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update of %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, t models.Test) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO tests (id, name, created_at, questions_json, attempts_json, file_content)
		VALUES (:id, :name, :created_at, :questions_json, :attempts_json, :file_content)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			created_at = excluded.created_at,
			questions_json = excluded.questions_json,
			attempts_json = excluded.attempts_json,
			file_content = excluded.file_content`, row)
	if err != nil {
		return fmt.Errorf("failed to put test %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete test %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM tests WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build bulk delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to bulk delete %d tests: %w", len(ids), err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tests`); err != nil {
		return fmt.Errorf("failed to clear tests: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.Test, error) {
	var rows []testRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, created_at, questions_json, attempts_json, file_content
		FROM tests ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	tests := make([]models.Test, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTest()
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, nil
}

func (s *SQLiteStore) LogEvent(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (ts, source, target, message) VALUES (?, ?, ?, ?)`,
		ev.Timestamp.UnixMilli(), ev.Source, ev.Target, ev.Message)
	return err
}

func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, ts, source, COALESCE(target, '') AS target, message
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	events := make([]Event, len(rows))
	for i, r := range rows {
		events[i] = r.toEvent()
	}
	return events, nil
}
