package review

import (
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"quizzer-server/models"
)

// Location tells which text of a question a match falls in.
type Location string

const (
	InStatement Location = "statement"
	InAnswer    Location = "answer"
)

// Match is one occurrence of the query. Start and End are rune offsets into
// the NFC form of the matched text, End exclusive.
type Match struct {
	Question int      `json:"question"`
	Location Location `json:"location"`
	Answer   string   `json:"answer,omitempty"` // answer content when Location is InAnswer
	Start    int      `json:"start"`
	End      int      `json:"end"`
}

// Highlight is a match on the current question, flagged when it is the focused one.
type Highlight struct {
	Match
	Focused bool `json:"focused"`
}

// FindAll returns every case-insensitive occurrence of query in the statements
// and answer contents of questions, in question order, statement first, then
// answers in source order. Explanations are not searched.
func FindAll(questions []models.Question, query string) []Match {
	needle := []rune(norm.NFC.String(query))
	if len(needle) == 0 {
		return nil
	}
	var matches []Match
	for qi, q := range questions {
		for _, span := range findSpans(q.Statement, needle) {
			matches = append(matches, Match{Question: qi, Location: InStatement, Start: span[0], End: span[1]})
		}
		for _, a := range q.Answers {
			for _, span := range findSpans(a.Content, needle) {
				matches = append(matches, Match{Question: qi, Location: InAnswer, Answer: a.Content, Start: span[0], End: span[1]})
			}
		}
	}
	return matches
}

// findSpans returns non-overlapping rune spans of needle in text, compared with
// Unicode simple case folding.
func findSpans(text string, needle []rune) [][2]int {
	hay := []rune(norm.NFC.String(text))
	n := len(needle)
	var spans [][2]int
	for i := 0; i+n <= len(hay); {
		if strings.EqualFold(string(hay[i:i+n]), string(needle)) {
			spans = append(spans, [2]int{i, i + n})
			i += n
			continue
		}
		i++
	}
	return spans
}

// Search holds the query, its matches and the focused match for one session.
type Search struct {
	mu        sync.Mutex
	questions []models.Question
	open      bool
	query     string
	matches   []Match
	focus     int
}

// NewSearch searches over questions.
func NewSearch(questions []models.Question) *Search {
	return &Search{questions: questions, focus: -1}
}

// Open starts a search with an empty query.
func (s *Search) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.reset()
}

// Close ends the search and clears its results.
func (s *Search) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.reset()
}

// IsOpen reports whether search is active.
func (s *Search) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Search) reset() {
	s.query = ""
	s.matches = nil
	s.focus = -1
}

// SetQuery recomputes matches and focuses the first one. An empty query clears results.
func (s *Search) SetQuery(query string) (Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if query == "" {
		s.reset()
		return Match{}, false
	}
	s.query = query
	s.matches = FindAll(s.questions, query)
	if len(s.matches) == 0 {
		s.focus = -1
		return Match{}, false
	}
	s.focus = 0
	return s.matches[0], true
}

// Next focuses the following match, wrapping to the first.
func (s *Search) Next() (Match, bool) { return s.step(1) }

// Prev focuses the preceding match, wrapping to the last.
func (s *Search) Prev() (Match, bool) { return s.step(-1) }

func (s *Search) step(delta int) (Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.matches)
	if n == 0 {
		return Match{}, false
	}
	s.focus = ((s.focus+delta)%n + n) % n
	return s.matches[s.focus], true
}

// Query returns the current query.
func (s *Search) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Matches returns a copy of all matches.
func (s *Search) Matches() []Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Match(nil), s.matches...)
}

// Focus returns the 0-based position of the focused match, -1 when none.
func (s *Search) Focus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

// Highlights returns the matches on question qi, marking the focused one.
func (s *Search) Highlights(qi int) []Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Highlight
	for i, m := range s.matches {
		if m.Question == qi {
			out = append(out, Highlight{Match: m, Focused: i == s.focus})
		}
	}
	return out
}

// State is the serializable view of the search.
type State struct {
	Open    bool    `json:"open"`
	Query   string  `json:"query"`
	Total   int     `json:"total"`
	Focus   int     `json:"focus"` // 0-based, -1 when nothing is focused
	Matches []Match `json:"matches"`
}

// Snapshot returns the current search state.
func (s *Search) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Open:    s.open,
		Query:   s.query,
		Total:   len(s.matches),
		Focus:   s.focus,
		Matches: append([]Match(nil), s.matches...),
	}
}
