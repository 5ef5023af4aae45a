package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/models"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, PickedCorrect, Classify(models.Answer{Correct: true}, true))
	assert.Equal(t, MissedCorrect, Classify(models.Answer{Correct: true}, false))
	assert.Equal(t, PickedIncorrect, Classify(models.Answer{}, true))
	assert.Equal(t, Neutral, Classify(models.Answer{}, false))
}

func TestViewQuestion(t *testing.T) {
	q := models.Question{Statement: "pick", Answers: []models.Answer{
		{Content: "a", Correct: true},
		{Content: "b", Correct: true},
		{Content: "c"},
	}}
	v := ViewQuestion(0, 1, q, nil, []string{"a", "c"})
	assert.False(t, v.Correct)
	outcomes := []Outcome{v.Answers[0].Outcome, v.Answers[1].Outcome, v.Answers[2].Outcome}
	assert.Equal(t, []Outcome{PickedCorrect, MissedCorrect, PickedIncorrect}, outcomes)
}

func reviewed(n int) *Review {
	qs := bank(n)
	tt := models.Test{ID: "t", Name: "Bank", Questions: qs, Attempts: []models.Attempt{
		{ID: "a1", Score: 1, SelectedAnswers: map[int][]string{0: {"alpha 1"}, 1: {"beta 2"}}},
	}}
	r, _ := NewLatest(tt, 20*time.Millisecond)
	return r
}

func TestReviewNavigation(t *testing.T) {
	r := reviewed(3)
	defer r.Close()

	r.Press("ArrowLeft")
	assert.Equal(t, 0, r.Pointer(), "clamped at first question")
	r.Press("ArrowRight")
	r.Press("ArrowRight")
	r.Press("ArrowRight")
	assert.Equal(t, 2, r.Pointer(), "clamped at last question")

	v := r.View()
	assert.Equal(t, 2, v.Question.Index)
	assert.Equal(t, MissedCorrect, v.Question.Answers[0].Outcome)
}

func TestReviewJump(t *testing.T) {
	r := reviewed(12)
	defer r.Close()

	r.Press("ArrowUp")
	r.Press("1")
	r.Press("2")
	assert.Eventually(t, func() bool { return r.Pointer() == 11 }, time.Second, 5*time.Millisecond)

	r.Press("ArrowUp")
	r.Press("4")
	r.Press("0")
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 11, r.Pointer(), "out of range jump does not move")
}

func TestReviewSearchJumpsAcrossQuestions(t *testing.T) {
	r := reviewed(5)
	defer r.Close()

	r.SetQuery("beta 4")
	assert.Equal(t, 3, r.Pointer())
	v := r.View()
	require.Len(t, v.Question.Highlights, 1)
	assert.True(t, v.Question.Highlights[0].Focused)
	assert.Equal(t, "search", v.Mode)

	r.Press("Escape")
	assert.Empty(t, r.View().Search.Matches)
}

func TestNewLatestWithoutAttempts(t *testing.T) {
	_, ok := NewLatest(models.Test{Questions: bank(1)}, 0)
	assert.False(t, ok)
}
