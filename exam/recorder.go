package exam

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"quizzer-server/db"
	"quizzer-server/models"
)

// ErrSave wraps every persistence failure while recording an attempt.
// The caller keeps its session alive so the user can retry.
var ErrSave = errors.New("could not save")

// Recorder scores submissions and appends them to a test's attempt history.
type Recorder struct {
	store db.Store
	now   func() time.Time
	newID func() string
}

// NewRecorder returns a recorder writing through store.
func NewRecorder(store db.Store) *Recorder {
	return &Recorder{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Record builds a new attempt from selections and the elapsed seconds, appends it
// to the test and writes the whole test back with Put.
func (r *Recorder) Record(ctx context.Context, testID string, selections map[int][]string, duration int) (models.Attempt, error) {
	t, err := r.store.Get(ctx, testID)
	if err != nil {
		return models.Attempt{}, fmt.Errorf("%w: loading test %s: %v", ErrSave, testID, err)
	}

	attempt := NewAttempt(t.Questions, selections, duration)
	attempt.ID = r.newID()
	attempt.Time = r.now().UTC()

	t.Attempts = append(t.Attempts, attempt)
	if err := r.store.Put(ctx, t); err != nil {
		return models.Attempt{}, fmt.Errorf("%w: writing attempt for %s: %v", ErrSave, testID, err)
	}
	log.Printf("Recorded attempt %s for test %s: %d/%d in %ds", attempt.ID, testID, attempt.Score, len(t.Questions), duration)
	db.LogEvent(ctx, r.store, "attempt", testID, fmt.Sprintf("Scored %d/%d", attempt.Score, len(t.Questions)))
	return attempt.Clone(), nil
}

// NewAttempt scores selections against questions. Only indices inside the
// question range are kept and each selection is copied.
func NewAttempt(questions []models.Question, selections map[int][]string, duration int) models.Attempt {
	selected := make(map[int][]string, len(selections))
	for idx, contents := range selections {
		if idx < 0 || idx >= len(questions) {
			continue
		}
		selected[idx] = append([]string(nil), contents...)
	}
	if duration < 0 {
		duration = 0
	}
	return models.Attempt{
		Duration:        duration,
		SelectedAnswers: selected,
		Score:           Score(questions, selected),
	}
}
