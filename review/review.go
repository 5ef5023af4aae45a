// Package review replays a finished attempt question by question and owns
// the full-text search used both while reviewing and while taking a test.
package review

import (
	"sync"
	"time"

	"quizzer-server/exam"
	"quizzer-server/keys"
	"quizzer-server/models"
	"quizzer-server/utils"
)

// Outcome classifies one answer of a reviewed question.
type Outcome string

const (
	Neutral         Outcome = "neutral"          // not correct, not picked
	PickedCorrect   Outcome = "picked-correct"   // correct and picked
	MissedCorrect   Outcome = "missed-correct"   // correct but not picked
	PickedIncorrect Outcome = "picked-incorrect" // picked but not correct
)

// Classify returns the outcome for an answer given whether it was picked.
func Classify(a models.Answer, picked bool) Outcome {
	switch {
	case a.Correct && picked:
		return PickedCorrect
	case a.Correct:
		return MissedCorrect
	case picked:
		return PickedIncorrect
	default:
		return Neutral
	}
}

// AnswerView is an answer as the review screen renders it.
type AnswerView struct {
	Content     string  `json:"content"`
	Explanation string  `json:"explanation"`
	Correct     bool    `json:"correct"`
	Picked      bool    `json:"picked"`
	Outcome     Outcome `json:"outcome"`
}

// QuestionView is one question with its per-answer outcomes.
type QuestionView struct {
	Index      int          `json:"index"`
	Total      int          `json:"total"`
	Statement  string       `json:"statement"`
	Answers    []AnswerView `json:"answers"`
	Selected   []string     `json:"selected"`
	Correct    bool         `json:"correct"`
	Highlights []Highlight  `json:"highlights,omitempty"`
}

// ViewQuestion builds the view of q with answers in the given order; a nil
// order means source order.
func ViewQuestion(idx, total int, q models.Question, order []models.Answer, selected []string) QuestionView {
	if order == nil {
		order = q.Answers
	}
	v := QuestionView{
		Index:     idx,
		Total:     total,
		Statement: q.Statement,
		Answers:   make([]AnswerView, len(order)),
		Selected:  append([]string{}, selected...),
		Correct:   exam.IsCorrect(q, selected),
	}
	for i, a := range order {
		picked := utils.ContainsString(selected, a.Content)
		v.Answers[i] = AnswerView{
			Content:     a.Content,
			Explanation: a.Explanation,
			Correct:     a.Correct,
			Picked:      picked,
			Outcome:     Classify(a, picked),
		}
	}
	return v
}

// Review walks a finished attempt. Answers render in source order because
// attempts do not record the order a taker saw.
type Review struct {
	mu      sync.Mutex
	test    models.Test
	attempt models.Attempt
	ptr     int

	search *Search
	keys   *keys.Interpreter
}

// New opens a review of attempt over test.
func New(test models.Test, attempt models.Attempt, debounce time.Duration) *Review {
	r := &Review{
		test:    test.Clone(),
		attempt: attempt.Clone(),
	}
	r.search = NewSearch(r.test.Questions)
	r.keys = keys.New(keys.ReviewKeymap(), debounce, r.onFlush)
	return r
}

// NewLatest opens a review of t's latest attempt. ok is false when t was never taken.
func NewLatest(t models.Test, debounce time.Duration) (*Review, bool) {
	latest, ok := t.LatestAttempt()
	if !ok {
		return nil, false
	}
	return New(t, latest, debounce), true
}

// Close stops any pending key timer.
func (r *Review) Close() { r.keys.Reset() }

// Attempt returns the attempt under review.
func (r *Review) Attempt() models.Attempt { return r.attempt.Clone() }

func (r *Review) onFlush(cmd keys.Command) {
	if cmd.Kind == keys.JumpTo {
		r.Goto(cmd.N - 1)
	}
}

// Goto moves to question idx. Out-of-range indices are ignored.
func (r *Review) Goto(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gotoLocked(idx)
}

func (r *Review) gotoLocked(idx int) bool {
	if idx < 0 || idx >= len(r.test.Questions) {
		return false
	}
	r.ptr = idx
	return true
}

// Move shifts the pointer by delta, clamped to the question range.
func (r *Review) Move(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ptr = clamp(r.ptr+delta, len(r.test.Questions))
}

// Press feeds one key through the review keymap.
func (r *Review) Press(key string) keys.Command {
	cmd, ok := r.keys.Press(key)
	if !ok {
		return cmd
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch cmd.Kind {
	case keys.Prev:
		r.ptr = clamp(r.ptr-1, len(r.test.Questions))
	case keys.Next:
		r.ptr = clamp(r.ptr+1, len(r.test.Questions))
	default:
		if m, ok := ApplySearch(r.search, cmd); ok {
			r.gotoLocked(m.Question)
		}
	}
	return cmd
}

// SetQuery replaces the search query, opening search if needed.
func (r *Review) SetQuery(q string) {
	if r.keys.Mode() != keys.Searching {
		r.Press("/")
	}
	if cmd, ok := r.keys.SetQuery(q); ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		if m, ok := ApplySearch(r.search, cmd); ok {
			r.gotoLocked(m.Question)
		}
	}
}

// ApplySearch applies a search command and returns the match to jump to, if any.
func ApplySearch(s *Search, cmd keys.Command) (Match, bool) {
	switch cmd.Kind {
	case keys.SearchOpen:
		s.Open()
	case keys.SearchClose:
		s.Close()
	case keys.SearchQuery:
		return s.SetQuery(cmd.Query)
	case keys.SearchNext:
		return s.Next()
	case keys.SearchPrev:
		return s.Prev()
	}
	return Match{}, false
}

// View is the review screen state.
type View struct {
	TestID   string       `json:"testId"`
	Name     string       `json:"name"`
	Score    int          `json:"score"`
	Total    int          `json:"total"`
	Mode     string       `json:"mode"`
	Buffer   string       `json:"buffer,omitempty"`
	Question QuestionView `json:"question"`
	Search   State        `json:"search"`
}

// View renders the current question.
func (r *Review) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := View{
		TestID: r.test.ID,
		Name:   r.test.Name,
		Score:  r.attempt.Score,
		Total:  len(r.test.Questions),
		Mode:   r.keys.Mode().String(),
		Buffer: r.keys.Buffer(),
		Search: r.search.Snapshot(),
	}
	if len(r.test.Questions) > 0 {
		q := r.test.Questions[r.ptr]
		v.Question = ViewQuestion(r.ptr, len(r.test.Questions), q, nil, r.attempt.SelectedAnswers[r.ptr])
		v.Question.Highlights = r.search.Highlights(r.ptr)
	}
	return v
}

// Pointer returns the current question index.
func (r *Review) Pointer() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ptr
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
