package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizzer-server/models"
)

// InitDB initializes the PostgreSQL database connection pool
func InitDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Ping the database to verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL database!")
	return pool, nil
}

// PostgresStore keeps tests in PostgreSQL, for users who already run one locally.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// CreateSchema sets up the tables used by the store.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		questions_json JSONB NOT NULL,
		attempts_json JSONB NOT NULL DEFAULT '[]'::jsonb,
		file_content TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tests_created_at ON tests (created_at DESC);

	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		ts BIGINT NOT NULL,
		source TEXT NOT NULL, -- e.g., "ingestion", "attempt"
		target TEXT,
		message TEXT NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const selectTestSQL = `SELECT id, name, created_at, questions_json, attempts_json, file_content FROM tests`

func scanTest(row pgx.Row) (models.Test, error) {
	var r testRow
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.QuestionsJSON, &r.AttemptsJSON, &r.FileContent); err != nil {
		return models.Test{}, err
	}
	return r.toTest()
}

func (s *PostgresStore) Add(ctx context.Context, t models.Test) error {
	r, err := toRow(t)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tests (id, name, created_at, questions_json, attempts_json, file_content)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Name, r.CreatedAt, r.QuestionsJSON, r.AttemptsJSON, r.FileContent)
	if err != nil {
		return fmt.Errorf("failed to insert test %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("add %s: %w", t.ID, ErrAlreadyExists)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.Test, error) {
	t, err := scanTest(s.pool.QueryRow(ctx, selectTestSQL+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Test{}, ErrNotFound
	}
	if err != nil {
		return models.Test{}, fmt.Errorf("failed to query test %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch models.TestPatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin update of %s: %w", id, err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTest(tx.QueryRow(ctx, selectTestSQL+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to query test %s: %w", id, err)
	}
	patch.Apply(&t)
	r, err := toRow(t)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE tests SET name = $2, questions_json = $3, attempts_json = $4, file_content = $5
		WHERE id = $1
	`, r.ID, r.Name, r.QuestionsJSON, r.AttemptsJSON, r.FileContent); err != nil {
		return fmt.Errorf("failed to update test %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit update of %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, t models.Test) error {
	r, err := toRow(t)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tests (id, name, created_at, questions_json, attempts_json, file_content)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			created_at = EXCLUDED.created_at,
			questions_json = EXCLUDED.questions_json,
			attempts_json = EXCLUDED.attempts_json,
			file_content = EXCLUDED.file_content
	`, r.ID, r.Name, r.CreatedAt, r.QuestionsJSON, r.AttemptsJSON, r.FileContent)
	if err != nil {
		return fmt.Errorf("failed to put test %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete test %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM tests WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to bulk delete %d tests: %w", len(ids), err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM tests`); err != nil {
		return fmt.Errorf("failed to clear tests: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Test, error) {
	rows, err := s.pool.Query(ctx, selectTestSQL+` ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []models.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test row: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (s *PostgresStore) LogEvent(ctx context.Context, ev Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (ts, source, target, message) VALUES ($1, $2, $3, $4)
	`, ev.Timestamp.UnixMilli(), ev.Source, ev.Target, ev.Message)
	return err
}

func (s *PostgresStore) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ts, source, COALESCE(target, ''), message
		FROM events ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Source, &r.Target, &r.Message); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, r.toEvent())
	}
	return events, rows.Err()
}
