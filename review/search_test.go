package review

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/models"
)

func bank(n int) []models.Question {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			Statement: fmt.Sprintf("Question number %d", i+1),
			Answers: []models.Answer{
				{Content: fmt.Sprintf("alpha %d", i+1), Correct: true, Explanation: "needle in explanation"},
				{Content: fmt.Sprintf("beta %d", i+1)},
			},
		}
	}
	return qs
}

func TestFindAllSingleAnswerMatch(t *testing.T) {
	qs := bank(5)
	qs[3].Answers[1].Content = "a Needle here"

	matches := FindAll(qs, "needle")
	require.Len(t, matches, 1)
	assert.Equal(t, Match{Question: 3, Location: InAnswer, Answer: "a Needle here", Start: 2, End: 8}, matches[0])
}

func TestFindAllStatementBeforeAnswersAndCaseInsensitive(t *testing.T) {
	qs := []models.Question{{
		Statement: "Go GO go",
		Answers:   []models.Answer{{Content: "gopher"}},
	}}
	matches := FindAll(qs, "go")
	require.Len(t, matches, 4)
	assert.Equal(t, InStatement, matches[0].Location)
	assert.Equal(t, 3, matches[1].Start)
	assert.Equal(t, InAnswer, matches[3].Location)
}

func TestFindAllRuneSpans(t *testing.T) {
	qs := []models.Question{{Statement: "Đáp án Đúng", Answers: []models.Answer{{Content: "x"}}}}
	matches := FindAll(qs, "đúng")
	require.Len(t, matches, 1)
	assert.Equal(t, 7, matches[0].Start)
	assert.Equal(t, 11, matches[0].End)
}

func TestFindAllDecomposedQueryMatchesComposedText(t *testing.T) {
	qs := []models.Question{{Statement: "caf\u00e9", Answers: []models.Answer{{Content: "x"}}}}
	matches := FindAll(qs, "cafe\u0301")
	require.Len(t, matches, 1)
	assert.Equal(t, 4, matches[0].End)
}

func TestSearchCyclesAndResets(t *testing.T) {
	s := NewSearch(bank(3))
	s.Open()

	first, ok := s.SetQuery("ALPHA")
	require.True(t, ok)
	assert.Equal(t, 0, first.Question)
	assert.Len(t, s.Matches(), 3)

	m, _ := s.Next()
	assert.Equal(t, 1, m.Question)
	m, _ = s.Next()
	assert.Equal(t, 2, m.Question)
	m, _ = s.Next()
	assert.Equal(t, 0, m.Question, "wraps to first")
	m, _ = s.Prev()
	assert.Equal(t, 2, m.Question, "wraps to last")

	hl := s.Highlights(2)
	require.Len(t, hl, 1)
	assert.True(t, hl[0].Focused)
	assert.False(t, s.Highlights(1)[0].Focused)

	_, ok = s.SetQuery("")
	assert.False(t, ok)
	assert.Empty(t, s.Matches())
	assert.Equal(t, -1, s.Focus())

	s.SetQuery("beta")
	s.Close()
	s.Open()
	assert.Empty(t, s.Matches())
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestExplanationsAreNotSearched(t *testing.T) {
	assert.Empty(t, FindAll(bank(4), "explanation"))
}
