package models

import (
	"fmt"
	"time"
)

// Answer struct represents one labeled choice of a question.
// Content is the identity of the answer within its question.
type Answer struct {
	Content     string `json:"content" yaml:"content"`
	Correct     bool   `json:"correct" yaml:"correct"`
	Explanation string `json:"explanation" yaml:"explanation"`
}

// Question struct represents a question statement with its answers
type Question struct {
	Statement string   `json:"statement" yaml:"statement"`
	Answers   []Answer `json:"answer" yaml:"answer"`
}

// CorrectContents returns the contents of every answer flagged correct, in source order.
func (q Question) CorrectContents() []string {
	var out []string
	for _, a := range q.Answers {
		if a.Correct {
			out = append(out, a.Content)
		}
	}
	return out
}

// CorrectCount returns how many answers are flagged correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, a := range q.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// AnswerByContent looks up an answer by its content.
func (q Question) AnswerByContent(content string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.Content == content {
			return a, true
		}
	}
	return Answer{}, false
}

// Attempt struct represents one completed pass through a test
type Attempt struct {
	ID              string           `json:"id"`
	Time            time.Time        `json:"time"`
	Duration        int              `json:"duration"` // seconds
	SelectedAnswers map[int][]string `json:"selectedAnswers"`
	Score           int              `json:"score"`
}

// Test struct represents a named question bank and its attempt history
type Test struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	Questions   []Question `json:"questions"`
	Attempts    []Attempt  `json:"attempts"`
	FileContent string     `json:"fileContent,omitempty"` // Source text kept for regeneration
}

// LatestAttempt returns the most recently appended attempt.
func (t Test) LatestAttempt() (Attempt, bool) {
	if len(t.Attempts) == 0 {
		return Attempt{}, false
	}
	return t.Attempts[len(t.Attempts)-1], true
}

// Label is the short list badge: the latest "score/total", or "NT" when never taken.
func (t Test) Label() string {
	latest, ok := t.LatestAttempt()
	if !ok {
		return "NT"
	}
	return fmt.Sprintf("%d/%d", latest.Score, len(t.Questions))
}

// Clone returns a deep copy so callers can hand tests across goroutines
// without sharing slices or maps.
func (t Test) Clone() Test {
	out := t
	out.Questions = CloneQuestions(t.Questions)
	if t.Attempts != nil {
		out.Attempts = make([]Attempt, len(t.Attempts))
		for i, a := range t.Attempts {
			out.Attempts[i] = a.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the attempt.
func (a Attempt) Clone() Attempt {
	out := a
	if a.SelectedAnswers != nil {
		out.SelectedAnswers = make(map[int][]string, len(a.SelectedAnswers))
		for k, v := range a.SelectedAnswers {
			out.SelectedAnswers[k] = append([]string(nil), v...)
		}
	}
	return out
}

// CloneQuestions deep copies a question slice.
func CloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = Question{Statement: q.Statement, Answers: append([]Answer(nil), q.Answers...)}
	}
	return out
}

// TestPatch carries the fields of a partial update. Nil fields are left untouched.
type TestPatch struct {
	Name        *string    `json:"name,omitempty"`
	Questions   []Question `json:"questions,omitempty"`
	Attempts    []Attempt  `json:"attempts,omitempty"`
	FileContent *string    `json:"fileContent,omitempty"`
}

// Apply merges the patch into t.
func (p TestPatch) Apply(t *Test) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Questions != nil {
		t.Questions = CloneQuestions(p.Questions)
	}
	if p.Attempts != nil {
		t.Attempts = append([]Attempt(nil), p.Attempts...)
	}
	if p.FileContent != nil {
		t.FileContent = *p.FileContent
	}
}

// TestSummary struct is the lightweight row shown in the test list
type TestSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	QuestionCount int       `json:"questionCount"`
	AttemptCount  int       `json:"attemptCount"`
	Label         string    `json:"label"` // "score/total" or "NT"
}

// SessionOptions holds the per-attempt options chosen on the start screen
type SessionOptions struct {
	TimeLimit       int  `json:"timeLimit"` // seconds, 0 means no limit
	InstantFeedback bool `json:"instantFeedback"`
}

// NoticeLevel classifies a user-facing notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice struct is a user-visible notification
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
}

// RenameRequest for renaming a test
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// BulkDeleteRequest for deleting several tests at once
type BulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// SelectRequest for selecting the active test
type SelectRequest struct {
	TestID string `json:"testId"`
}

// KeyRequest carries one key press from the presentation layer
type KeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// AnswerRequest toggles a choice on the current question
type AnswerRequest struct {
	Content string `json:"content" binding:"required"`
}

// SearchRequest sets the search query
type SearchRequest struct {
	Query string `json:"query"`
}

// RepairRequest carries a human-corrected JSON text
type RepairRequest struct {
	Text string `json:"text"`
}
