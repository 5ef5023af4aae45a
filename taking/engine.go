// Package taking runs one in-progress attempt: the question pointer, the
// per-question answer order, selections, review marks, the clock and the
// keyboard interpreter, up to a single recorded submission.
package taking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"quizzer-server/exam"
	"quizzer-server/keys"
	"quizzer-server/models"
	"quizzer-server/review"
	"quizzer-server/utils"
)

var (
	// ErrFinished is returned for any input after the attempt was recorded.
	ErrFinished = errors.New("session already finished")
	// ErrUnknownAnswer is returned when a toggled content is not an answer of the current question.
	ErrUnknownAnswer = errors.New("answer not in current question")
)

// Reason says what ended the attempt.
type Reason string

const (
	Manual  Reason = "manual"
	Expired Reason = "expired"
)

// Submission is what the engine hands to the recorder.
type Submission struct {
	Selections map[int][]string
	Duration   int // seconds
	Reason     Reason
}

// SubmitFunc persists a submission. A non-nil error keeps the session open.
type SubmitFunc func(ctx context.Context, sub Submission) error

// Tick is delivered once per clock interval.
type Tick struct {
	Elapsed   int `json:"elapsed"`
	Remaining int `json:"remaining"` // 0 when there is no limit
	Limit     int `json:"limit"`
}

type config struct {
	seed     int64
	tick     time.Duration
	debounce time.Duration
	now      func() time.Time
	onTick   func(Tick)
	onFinish func(Reason, error)
}

// Option configures an Engine.
type Option func(*config)

// WithSeed fixes the answer shuffle seed.
func WithSeed(seed int64) Option { return func(c *config) { c.seed = seed } }

// WithTick sets the clock interval. Defaults to one second.
func WithTick(d time.Duration) Option { return func(c *config) { c.tick = d } }

// WithDebounce sets the jump buffer window.
func WithDebounce(d time.Duration) Option { return func(c *config) { c.debounce = d } }

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option { return func(c *config) { c.now = now } }

// WithOnTick registers a tick listener. It runs on the clock goroutine.
func WithOnTick(fn func(Tick)) Option { return func(c *config) { c.onTick = fn } }

// WithOnFinish is told about every finish attempt made by the countdown,
// with the submit error if any.
func WithOnFinish(fn func(Reason, error)) Option { return func(c *config) { c.onFinish = fn } }

// Engine owns the working copy of one attempt until it is submitted.
type Engine struct {
	mu       sync.Mutex
	test     models.Test
	opts     models.SessionOptions
	cfg      config
	rng      *rand.Rand
	started  time.Time
	ptr      int
	order    map[int][]models.Answer
	selected map[int][]string
	marks    map[int]bool
	saveErr  error
	expired  bool

	search *review.Search
	keys   *keys.Interpreter
	submit SubmitFunc

	finishMu sync.Mutex // serializes Finish so only one submission is recorded
	finished bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New prepares an attempt at test. The clock starts with Start.
func New(test models.Test, opts models.SessionOptions, submit SubmitFunc, options ...Option) *Engine {
	cfg := config{tick: time.Second, debounce: keys.DefaultDebounce, now: time.Now}
	for _, o := range options {
		o(&cfg)
	}
	if cfg.seed == 0 {
		cfg.seed = utils.SeedFrom(fmt.Sprintf("%s:%d:%d", test.ID, len(test.Attempts), cfg.now().UnixNano()))
	}
	e := &Engine{
		test:     test.Clone(),
		opts:     opts,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.seed)),
		order:    make(map[int][]models.Answer),
		selected: make(map[int][]string),
		marks:    make(map[int]bool),
		submit:   submit,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.search = review.NewSearch(e.test.Questions)
	e.keys = keys.New(keys.TakingKeymap(), cfg.debounce, e.onFlush)
	return e
}

// Start records the start time, visits the first question and runs the clock.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.started = e.cfg.now()
	e.visit(0)
	e.mu.Unlock()
	go e.run(ctx)
}

// Close stops the clock and pending key timers without submitting.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.keys.Reset()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.tick)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, expire := e.onClock()
			if e.cfg.onTick != nil {
				e.cfg.onTick(tick)
			}
			if expire {
				err := e.Finish(ctx, Expired)
				if err != nil && !errors.Is(err, ErrFinished) {
					log.Printf("Auto-submit of test %s failed: %v", e.test.ID, err)
				}
				if e.cfg.onFinish != nil {
					e.cfg.onFinish(Expired, err)
				}
			}
		}
	}
}

func (e *Engine) onClock() (Tick, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.tickLocked()
	expire := t.Limit > 0 && t.Remaining == 0 && !e.expired
	if expire {
		e.expired = true
	}
	return t, expire
}

func (e *Engine) elapsedLocked() int {
	if e.started.IsZero() {
		return 0
	}
	secs := int(e.cfg.now().Sub(e.started) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

func (e *Engine) tickLocked() Tick {
	t := Tick{Elapsed: e.elapsedLocked(), Limit: e.opts.TimeLimit}
	if t.Limit > 0 {
		if t.Elapsed > t.Limit {
			t.Elapsed = t.Limit
		}
		t.Remaining = t.Limit - t.Elapsed
	}
	return t
}

// visit shuffles a question's answers the first time it is shown. Callers hold e.mu.
func (e *Engine) visit(idx int) {
	if idx < 0 || idx >= len(e.test.Questions) {
		return
	}
	if _, ok := e.order[idx]; !ok {
		e.order[idx] = exam.ShuffledAnswers(e.rng, e.test.Questions[idx])
	}
}

// Goto moves the pointer to idx. Out-of-range indices leave it unchanged.
func (e *Engine) Goto(idx int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gotoLocked(idx)
}

func (e *Engine) gotoLocked(idx int) bool {
	if idx < 0 || idx >= len(e.test.Questions) {
		return false
	}
	e.ptr = idx
	e.visit(idx)
	return true
}

// Move shifts the pointer by delta, clamped to the question range.
func (e *Engine) Move(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moveLocked(delta)
}

func (e *Engine) moveLocked(delta int) {
	n := len(e.test.Questions)
	if n == 0 {
		return
	}
	idx := e.ptr + delta
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	e.gotoLocked(idx)
}

// Pointer returns the current question index.
func (e *Engine) Pointer() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ptr
}

// Toggle selects or deselects content on the current question. Questions with
// exactly one correct answer are exclusive choice; others toggle independently.
func (e *Engine) Toggle(content string) error {
	if e.isFinished() {
		return ErrFinished
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggleLocked(e.ptr, content)
}

func (e *Engine) toggleLocked(idx int, content string) error {
	if idx < 0 || idx >= len(e.test.Questions) {
		return ErrUnknownAnswer
	}
	q := e.test.Questions[idx]
	if _, ok := q.AnswerByContent(content); !ok {
		return ErrUnknownAnswer
	}
	cur := e.selected[idx]
	if q.CorrectCount() == 1 {
		e.selected[idx] = []string{content}
		return nil
	}
	next := make([]string, 0, len(cur)+1)
	removed := false
	for _, c := range cur {
		if c == content {
			removed = true
			continue
		}
		next = append(next, c)
	}
	if !removed {
		next = append(next, content)
	}
	if len(next) == 0 {
		delete(e.selected, idx)
		return nil
	}
	e.selected[idx] = next
	return nil
}

// ToggleNth toggles the nth (1-based) answer in the order shown for the current question.
func (e *Engine) ToggleNth(n int) error {
	if e.isFinished() {
		return ErrFinished
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggleNthLocked(n)
}

func (e *Engine) toggleNthLocked(n int) error {
	e.visit(e.ptr)
	order := e.order[e.ptr]
	if n < 1 || n > len(order) {
		return nil
	}
	return e.toggleLocked(e.ptr, order[n-1].Content)
}

// ToggleMark flips the review mark of the current question.
func (e *Engine) ToggleMark() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toggleMarkLocked()
}

func (e *Engine) toggleMarkLocked() {
	if e.marks[e.ptr] {
		delete(e.marks, e.ptr)
		return
	}
	e.marks[e.ptr] = true
}

func (e *Engine) onFlush(cmd keys.Command) {
	if cmd.Kind == keys.JumpTo {
		e.Goto(cmd.N - 1)
	}
}

// Press routes one key through the interpreter. A confirmed submit finishes the attempt.
func (e *Engine) Press(ctx context.Context, key string) (keys.Command, error) {
	if e.isFinished() {
		return keys.Command{}, ErrFinished
	}
	cmd, ok := e.keys.Press(key)
	if !ok {
		return cmd, nil
	}
	if cmd.Kind == keys.Submit {
		return cmd, e.Finish(ctx, Manual)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch cmd.Kind {
	case keys.Prev:
		e.moveLocked(-1)
	case keys.Next:
		e.moveLocked(1)
	case keys.ToggleChoice:
		return cmd, e.toggleNthLocked(cmd.N)
	case keys.ToggleMark:
		e.toggleMarkLocked()
	default:
		if m, ok := review.ApplySearch(e.search, cmd); ok {
			e.gotoLocked(m.Question)
		}
	}
	return cmd, nil
}

// SetQuery replaces the search query, opening search if it is closed.
func (e *Engine) SetQuery(q string) error {
	if e.isFinished() {
		return ErrFinished
	}
	if e.keys.Mode() != keys.Searching {
		if _, err := e.Press(context.Background(), "/"); err != nil {
			return err
		}
	}
	cmd, ok := e.keys.SetQuery(q)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := review.ApplySearch(e.search, cmd); ok {
		e.gotoLocked(m.Question)
	}
	return nil
}

func (e *Engine) isFinished() bool {
	e.finishMu.Lock()
	defer e.finishMu.Unlock()
	return e.finished
}

// Finished reports whether the attempt was recorded.
func (e *Engine) Finished() bool { return e.isFinished() }

// Finish submits the attempt exactly once. Later calls return ErrFinished. If
// the submit function fails the session stays open and Finish may be retried.
func (e *Engine) Finish(ctx context.Context, reason Reason) error {
	e.finishMu.Lock()
	defer e.finishMu.Unlock()
	if e.finished {
		return ErrFinished
	}

	sub := e.submission(reason)
	if err := e.submit(ctx, sub); err != nil {
		e.mu.Lock()
		e.saveErr = err
		e.mu.Unlock()
		return err
	}
	e.finished = true
	e.mu.Lock()
	e.saveErr = nil
	e.mu.Unlock()
	e.stopOnce.Do(func() { close(e.stop) })
	e.keys.Reset()
	return nil
}

func (e *Engine) submission(reason Reason) Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	sel := make(map[int][]string, len(e.selected))
	for idx, contents := range e.selected {
		sel[idx] = append([]string(nil), contents...)
	}
	return Submission{Selections: sel, Duration: e.tickLocked().Elapsed, Reason: reason}
}
