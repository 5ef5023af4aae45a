package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/db"
	"quizzer-server/models"
)

func memoryStore(t *testing.T) db.Store {
	t.Helper()
	s, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func threeQuestionTest() models.Test {
	return models.Test{
		ID:        "t1",
		Name:      "Three",
		CreatedAt: time.Now(),
		Questions: []models.Question{
			q("q1", right("a1"), wrong("b1")),
			q("q2", right("a2"), wrong("b2")),
			q("q3", right("a3"), wrong("b3")),
		},
	}
}

func TestRecordScenario(t *testing.T) {
	store := memoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, threeQuestionTest()))

	r := NewRecorder(store)
	attempt, err := r.Record(ctx, "t1", map[int][]string{0: {"a1"}, 1: {"b2"}, 2: {"a3"}}, 42)
	require.NoError(t, err)

	assert.Equal(t, 2, attempt.Score)
	assert.Equal(t, 42, attempt.Duration)
	assert.Len(t, attempt.SelectedAnswers, 3)
	assert.NotEmpty(t, attempt.ID)

	saved, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, saved.Attempts, 1)
	assert.Equal(t, attempt.ID, saved.Attempts[0].ID)
}

func TestRecordAppendsWithoutTouchingEarlierAttempts(t *testing.T) {
	store := memoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, threeQuestionTest()))
	r := NewRecorder(store)

	first, err := r.Record(ctx, "t1", map[int][]string{0: {"a1"}}, 5)
	require.NoError(t, err)
	_, err = r.Record(ctx, "t1", map[int][]string{0: {"b1"}, 1: {"a2"}, 2: {"a3"}}, 9)
	require.NoError(t, err)

	saved, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, saved.Attempts, 2)
	assert.Equal(t, first.ID, saved.Attempts[0].ID)
	assert.Equal(t, first.Score, saved.Attempts[0].Score)
	assert.Equal(t, []string{"a1"}, saved.Attempts[0].SelectedAnswers[0])
	assert.NotEqual(t, first.ID, saved.Attempts[1].ID)
}

type failingPut struct {
	db.Store
}

func (f failingPut) Put(ctx context.Context, t models.Test) error {
	return errors.New("disk full")
}

func TestRecordSurfacesSaveFailure(t *testing.T) {
	store := memoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, threeQuestionTest()))

	_, err := NewRecorder(failingPut{store}).Record(ctx, "t1", nil, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSave)

	saved, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, saved.Attempts)
}

func TestNewAttemptDropsOutOfRangeIndices(t *testing.T) {
	tt := threeQuestionTest()
	a := NewAttempt(tt.Questions, map[int][]string{0: {"a1"}, 7: {"x"}, -1: {"y"}}, -3)
	assert.Len(t, a.SelectedAnswers, 1)
	assert.Equal(t, 0, a.Duration)
	assert.Equal(t, 1, a.Score)
}
