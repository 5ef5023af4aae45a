package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"quizzer-server/models"
	"quizzer-server/utils"
)

var (
	// ErrNotFound is the absent-value signal of Get and the failure of Update on a missing id.
	ErrNotFound = errors.New("test not found")
	// ErrAlreadyExists is returned by Add when the id is taken.
	ErrAlreadyExists = errors.New("test already exists")
)

// Store is the persistence boundary for tests. Implementations are safe for
// concurrent use; concurrent writes to the same test are last-write-wins.
type Store interface {
	Add(ctx context.Context, t models.Test) error
	Get(ctx context.Context, id string) (models.Test, error)
	Update(ctx context.Context, id string, patch models.TestPatch) error
	Put(ctx context.Context, t models.Test) error
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
	// List returns every test ordered by creation time, newest first.
	List(ctx context.Context) ([]models.Test, error)

	LogEvent(ctx context.Context, ev Event) error
	RecentEvents(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// Event struct is one row of the activity log shown on the overview page
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // e.g. "ingestion", "attempt", "store"
	Target    string    `json:"target"` // test id or file name
	Message   string    `json:"message"`
}

type eventRow struct {
	ID        int64  `db:"id"`
	Timestamp int64  `db:"ts"` // unix milliseconds
	Source    string `db:"source"`
	Target    string `db:"target"`
	Message   string `db:"message"`
}

func (r eventRow) toEvent() Event {
	return Event{ID: r.ID, Timestamp: time.UnixMilli(r.Timestamp).UTC(), Source: r.Source, Target: r.Target, Message: r.Message}
}

// Driver selects the storage backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DefaultSQLiteDSN is a local file database with a busy timeout so concurrent writers wait instead of failing.
const DefaultSQLiteDSN = "file:quizzer.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"

// Open connects to the configured backend and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (Store, error) {
	switch driver {
	case DriverPostgres:
		pool, err := InitDB(ctx, dsn)
		if err != nil {
			return nil, err
		}
		s := &PostgresStore{pool: pool}
		if err := s.CreateSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case DriverSQLite, "":
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rename is an Update that only changes the name. An empty name leaves the test unchanged.
func Rename(ctx context.Context, s Store, id, name string) error {
	return s.Update(ctx, id, models.TestPatch{Name: utils.StringPtr(name)})
}

// LogEvent records an activity event and only logs when the write fails.
func LogEvent(ctx context.Context, s Store, source, target, message string) {
	if s == nil {
		return
	}
	err := s.LogEvent(ctx, Event{Timestamp: time.Now(), Source: source, Target: target, Message: message})
	if err != nil {
		log.Printf("ERROR: Failed to log event to database: %v. Event: %s on %s: %s", err, source, target, message)
	}
}

// testRow is the column layout shared by both backends.
type testRow struct {
	ID            string  `db:"id"`
	Name          string  `db:"name"`
	CreatedAt     int64   `db:"created_at"` // unix milliseconds
	QuestionsJSON []byte  `db:"questions_json"`
	AttemptsJSON  []byte  `db:"attempts_json"`
	FileContent   *string `db:"file_content"`
}

func toRow(t models.Test) (testRow, error) {
	questions := t.Questions
	if questions == nil {
		questions = []models.Question{}
	}
	attempts := t.Attempts
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	qj, err := json.Marshal(questions)
	if err != nil {
		return testRow{}, fmt.Errorf("failed to marshal questions for test %s: %w", t.ID, err)
	}
	aj, err := json.Marshal(attempts)
	if err != nil {
		return testRow{}, fmt.Errorf("failed to marshal attempts for test %s: %w", t.ID, err)
	}
	row := testRow{
		ID:            t.ID,
		Name:          t.Name,
		CreatedAt:     t.CreatedAt.UnixMilli(),
		QuestionsJSON: qj,
		AttemptsJSON:  aj,
	}
	if t.FileContent != "" {
		fc := t.FileContent
		row.FileContent = &fc
	}
	return row, nil
}

func (r testRow) toTest() (models.Test, error) {
	t := models.Test{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
	if err := json.Unmarshal(r.QuestionsJSON, &t.Questions); err != nil {
		return models.Test{}, fmt.Errorf("failed to unmarshal questions for test %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.AttemptsJSON, &t.Attempts); err != nil {
		return models.Test{}, fmt.Errorf("failed to unmarshal attempts for test %s: %w", r.ID, err)
	}
	if r.FileContent != nil {
		t.FileContent = *r.FileContent
	}
	return t, nil
}
