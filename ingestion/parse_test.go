package ingestion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/models"
)

const validJSON = `[
  {"statement": "Capital of France?", "answer": [
    {"content": "Paris", "correct": true, "explanation": "CORRECT"},
    {"content": "Lyon", "correct": false, "explanation": "INCORRECT"}
  ]}
]`

func TestStripFences(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"json fence", "```json\n[1]\n```", "[1]"},
		{"bare fence", "```\n[1]\n```", "[1]"},
		{"upper case tag", "```JSON\n[1]\n```", "[1]"},
		{"no fence", "  [1]  ", "[1]"},
		{"inner fence kept", "[1]\n```x", "[1]\n```x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestNormalizeQuotes(t *testing.T) {
	assert.Equal(t, `"a" 'b'`, NormalizeQuotes("\u201ca\u201d \u2018b\u2019"))
	assert.Equal(t, "caf\u00e9", NormalizeQuotes("\ufeffcafe\u0301"))
}

func TestParseQuestionsFencedAndSmartQuotes(t *testing.T) {
	raw := "```json\n" + `[{“statement”: "Q", "answer": [{"content": "A", "correct": true}, {"content": "B"}]}]` + "\n```"
	questions, _, err := ParseQuestions(raw)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, []string{"A"}, questions[0].CorrectContents())
}

func TestParseQuestionsMalformedKeepsCleanedText(t *testing.T) {
	questions, cleaned, err := ParseQuestions("```json\n[{...malformed...}]\n```")
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Nil(t, questions)
	assert.Equal(t, "[{...malformed...}]", cleaned)
}

func TestParseQuestionsRejects(t *testing.T) {
	tests := []struct {
		name, in string
	}{
		{"object", `{"statement": "Q"}`},
		{"empty array", `[]`},
		{"empty statement", `[{"statement": " ", "answer": [{"content": "A", "correct": true}]}]`},
		{"no answers", `[{"statement": "Q", "answer": []}]`},
		{"duplicate answers", `[{"statement": "Q", "answer": [{"content": "A", "correct": true}, {"content": "A"}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseQuestions(tt.in)
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}

func TestZeroCorrectQuestionIsAccepted(t *testing.T) {
	_, _, err := ParseQuestions(`[{"statement": "Q", "answer": [{"content": "A"}, {"content": "B"}]}]`)
	assert.NoError(t, err)
}

func TestQuestionsRoundTripThroughJSON(t *testing.T) {
	questions, _, err := ParseQuestions(validJSON)
	require.NoError(t, err)

	data, err := json.Marshal(questions)
	require.NoError(t, err)
	var back []models.Question
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, questions, back)
}
