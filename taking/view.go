package taking

import (
	"sort"

	"quizzer-server/exam"
	"quizzer-server/models"
	"quizzer-server/review"
	"quizzer-server/utils"
)

// ChoiceView is one answer as shown while taking. Outcome and Explanation are
// only filled with instant feedback once the question has a selection.
type ChoiceView struct {
	Number      int            `json:"number"` // 1-based shortcut digit
	Content     string         `json:"content"`
	Selected    bool           `json:"selected"`
	Outcome     review.Outcome `json:"outcome,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
}

// View is the test-taking screen state.
type View struct {
	TestID     string             `json:"testId"`
	Name       string             `json:"name"`
	Index      int                `json:"index"`
	Total      int                `json:"total"`
	Statement  string             `json:"statement"`
	Multiple   bool               `json:"multiple"` // more than one answer may be selected
	Choices    []ChoiceView       `json:"choices"`
	Marked     bool               `json:"marked"`
	Marks      []int              `json:"marks"`
	Answered   []int              `json:"answered"`
	Correct    *bool              `json:"correct,omitempty"` // instant feedback only
	Highlights []review.Highlight `json:"highlights,omitempty"`
	Mode       string             `json:"mode"`
	Buffer     string             `json:"buffer,omitempty"`
	Search     review.State       `json:"search"`
	Clock      Tick               `json:"clock"`
	Finished   bool               `json:"finished"`
	SaveError  string             `json:"saveError,omitempty"`
}

// View renders the current question.
func (e *Engine) View() View {
	finished := e.isFinished()
	mode := e.keys.Mode().String()
	buffer := e.keys.Buffer()

	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		TestID:   e.test.ID,
		Name:     e.test.Name,
		Index:    e.ptr,
		Total:    len(e.test.Questions),
		Marks:    sortedKeys(e.marks),
		Answered: answeredIndices(e.selected),
		Mode:     mode,
		Buffer:   buffer,
		Search:   e.search.Snapshot(),
		Clock:    e.tickLocked(),
		Finished: finished,
	}
	if e.saveErr != nil {
		v.SaveError = e.saveErr.Error()
	}
	if len(e.test.Questions) == 0 {
		return v
	}

	q := e.test.Questions[e.ptr]
	e.visit(e.ptr)
	selected := e.selected[e.ptr]
	feedback := e.opts.InstantFeedback && len(selected) > 0

	v.Statement = q.Statement
	v.Multiple = q.CorrectCount() != 1
	v.Marked = e.marks[e.ptr]
	v.Highlights = e.search.Highlights(e.ptr)
	for i, a := range e.order[e.ptr] {
		picked := utils.ContainsString(selected, a.Content)
		c := ChoiceView{Number: i + 1, Content: a.Content, Selected: picked}
		if feedback {
			c.Outcome = review.Classify(a, picked)
			c.Explanation = a.Explanation
		}
		v.Choices = append(v.Choices, c)
	}
	if feedback {
		ok := exam.IsCorrect(q, selected)
		v.Correct = &ok
	}
	return v
}

// Selections returns a copy of the current selections.
func (e *Engine) Selections() map[int][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int][]string, len(e.selected))
	for k, v := range e.selected {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Order returns the answer order shown for question idx, shuffling it on first use.
func (e *Engine) Order(idx int) []models.Answer {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visit(idx)
	return append([]models.Answer(nil), e.order[idx]...)
}

// Test returns the test being taken.
func (e *Engine) Test() models.Test {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.test.Clone()
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func answeredIndices(m map[int][]string) []int {
	out := make([]int, 0, len(m))
	for k, v := range m {
		if len(v) > 0 {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}
