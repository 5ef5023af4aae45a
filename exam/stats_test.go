package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/models"
)

func TestSummarize(t *testing.T) {
	tt := threeQuestionTest()
	_, err := Summarize(tt)
	assert.ErrorIs(t, err, ErrNotTaken)

	tt.Attempts = []models.Attempt{
		{Score: 1, Duration: 10, SelectedAnswers: map[int][]string{0: {"a1"}}},
		{Score: 2, Duration: 125, SelectedAnswers: map[int][]string{0: {"a1"}, 2: {"a3"}}},
	}
	s, err := Summarize(tt)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Score)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 67, s.Accuracy)
	assert.Equal(t, "2 min 5 sec", s.Time)
	assert.Equal(t, 2, s.AttemptCount)
	require.Len(t, s.Questions, 3)
	assert.Equal(t, 2, s.Questions[0].Correct)
	assert.Equal(t, 0, s.Questions[1].Correct)
	assert.InDelta(t, 0.5, s.Questions[2].Rate, 1e-9)
}

func TestAccuracyAndFormat(t *testing.T) {
	assert.Equal(t, 0, Accuracy(0, 0))
	assert.Equal(t, 50, Accuracy(1, 2))
	assert.Equal(t, "0 min 0 sec", FormatDuration(-4))
	assert.Equal(t, "1 min 0 sec", FormatDuration(60))
}

func TestLabel(t *testing.T) {
	tt := threeQuestionTest()
	assert.Equal(t, "NT", tt.Label())
	tt.Attempts = []models.Attempt{{Score: 2}}
	assert.Equal(t, "2/3", tt.Label())
}
