package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quizzer-server/db"
	"quizzer-server/exam"
	"quizzer-server/keys"
	"quizzer-server/models"
	"quizzer-server/notify"
	"quizzer-server/review"
	"quizzer-server/taking"
)

// Option configures a Workspace.
type Option func(*Workspace)

// WithDebounce sets the jump buffer window for taking and review.
func WithDebounce(d time.Duration) Option { return func(w *Workspace) { w.debounce = d } }

// WithTick sets the taking clock interval.
func WithTick(d time.Duration) Option { return func(w *Workspace) { w.tick = d } }

// Workspace is the single-user session: the selected test, the state machine
// and whichever of the taking engine or review is live.
//
// Engine and review calls are made without holding mu, because a submission
// running on the engine calls back into the workspace to finish the session.
type Workspace struct {
	base     context.Context
	store    db.Store
	recorder *exam.Recorder
	sink     notify.Sink
	debounce time.Duration
	tick     time.Duration

	mu      sync.Mutex
	machine *Machine
	test    models.Test
	engine  *taking.Engine
	review  *review.Review
}

// NewWorkspace wires a workspace to store. base bounds the taking clocks and
// the countdown auto-submit; it is usually the server's lifetime context.
func NewWorkspace(base context.Context, store db.Store, sink notify.Sink, opts ...Option) *Workspace {
	w := &Workspace{
		base:     base,
		store:    store,
		recorder: exam.NewRecorder(store),
		sink:     sink,
		debounce: keys.DefaultDebounce,
		tick:     time.Second,
		machine:  NewMachine(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// State returns the current state.
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.State()
}

// Select makes id the selected test, discarding any running session without recording it.
func (w *Workspace) Select(ctx context.Context, id string) (State, error) {
	t, err := w.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("selecting test %s: %w", id, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropLocked()
	w.test = t
	return w.machine.Select(t.ID, len(t.Attempts)), nil
}

// Deselect clears the selection.
func (w *Workspace) Deselect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropLocked()
	w.machine.Deselect()
	w.test = models.Test{}
}

func (w *Workspace) dropLocked() {
	if w.engine != nil {
		w.engine.Close()
		w.engine = nil
	}
	if w.review != nil {
		w.review.Close()
		w.review = nil
	}
}

// Start begins the first attempt of a fresh test.
func (w *Workspace) Start(opts models.SessionOptions) error {
	return w.begin(opts, (*Machine).Start)
}

// Retake begins another attempt from the summary with fresh working state.
func (w *Workspace) Retake(opts models.SessionOptions) error {
	return w.begin(opts, (*Machine).Retake)
}

func (w *Workspace) begin(opts models.SessionOptions, transition func(*Machine) error) error {
	if opts.TimeLimit < 0 {
		opts.TimeLimit = 0
	}
	w.mu.Lock()
	if err := transition(w.machine); err != nil {
		w.mu.Unlock()
		return err
	}
	testID := w.test.ID
	var eng *taking.Engine
	eng = taking.New(w.test, opts, func(ctx context.Context, sub taking.Submission) error {
		return w.record(ctx, eng, testID, sub)
	}, taking.WithDebounce(w.debounce), taking.WithTick(w.tick))
	w.engine = eng
	w.mu.Unlock()

	eng.Start(w.base)
	log.Printf("Started attempt on test %s (time limit %ds)", testID, opts.TimeLimit)
	return nil
}

// record is the engine's submit function. It runs under the engine's finish
// guard, so it is called at most once per successful submission.
func (w *Workspace) record(ctx context.Context, eng *taking.Engine, testID string, sub taking.Submission) error {
	attempt, err := w.recorder.Record(ctx, testID, sub.Selections, sub.Duration)
	if err != nil {
		notify.Error(w.sink, "Could not save your attempt. Please try again.")
		return err
	}
	if sub.Reason == taking.Expired {
		notify.Info(w.sink, "Time is up. Your answers were submitted.")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.engine != eng {
		return nil
	}
	w.engine = nil
	// Watch may already have applied the snapshot carrying this attempt.
	if !hasAttempt(w.test.Attempts, attempt.ID) {
		w.test.Attempts = append(w.test.Attempts, attempt)
	}
	if err := w.machine.Finish(); err != nil {
		log.Printf("Finishing session for test %s: %v", testID, err)
	}
	return nil
}

func (w *Workspace) current() (*taking.Engine, *review.Review, State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine, w.review, w.machine.State()
}

func (w *Workspace) takingEngine() (*taking.Engine, error) {
	eng, _, state := w.current()
	if state == NoTest {
		return nil, ErrNoTest
	}
	if eng == nil {
		return nil, fmt.Errorf("%w: no attempt running in %s", ErrInvalidTransition, state)
	}
	return eng, nil
}

// Submit records the running attempt. A second submit gets taking.ErrFinished.
func (w *Workspace) Submit(ctx context.Context) error {
	eng, err := w.takingEngine()
	if err != nil {
		// A session that already moved to the summary was finished by someone else.
		if errors.Is(err, ErrInvalidTransition) && w.State() == Summary {
			return taking.ErrFinished
		}
		return err
	}
	return eng.Finish(ctx, taking.Manual)
}

// Toggle selects or deselects an answer of the current question.
func (w *Workspace) Toggle(content string) error {
	eng, err := w.takingEngine()
	if err != nil {
		return err
	}
	return eng.Toggle(content)
}

// ToggleMark flips the review mark of the current question.
func (w *Workspace) ToggleMark() error {
	eng, err := w.takingEngine()
	if err != nil {
		return err
	}
	eng.ToggleMark()
	return nil
}

// Goto moves the pointer of the live engine or review.
func (w *Workspace) Goto(idx int) error {
	eng, rev, state := w.current()
	switch {
	case eng != nil:
		eng.Goto(idx)
	case rev != nil:
		rev.Goto(idx)
	default:
		return fmt.Errorf("%w: nothing to navigate in %s", ErrInvalidTransition, state)
	}
	return nil
}

// Press routes a key to the live engine or review.
func (w *Workspace) Press(ctx context.Context, key string) (keys.Command, error) {
	eng, rev, state := w.current()
	switch {
	case eng != nil:
		return eng.Press(ctx, key)
	case rev != nil:
		return rev.Press(key), nil
	case state == NoTest:
		return keys.Command{}, ErrNoTest
	}
	return keys.Command{}, fmt.Errorf("%w: keys are ignored in %s", ErrInvalidTransition, state)
}

// Search sets the search query of the live engine or review.
func (w *Workspace) Search(query string) error {
	eng, rev, state := w.current()
	switch {
	case eng != nil:
		return eng.SetQuery(query)
	case rev != nil:
		rev.SetQuery(query)
		return nil
	}
	return fmt.Errorf("%w: search is unavailable in %s", ErrInvalidTransition, state)
}

// Review opens the latest attempt.
func (w *Workspace) Review() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rev, ok := review.NewLatest(w.test, w.debounce)
	if !ok && w.machine.State() == Summary {
		w.machine.Refresh(0)
	}
	if err := w.machine.Review(); err != nil {
		if rev != nil {
			rev.Close()
		}
		return err
	}
	w.review = rev
	return nil
}

// Back leaves the review for the summary.
func (w *Workspace) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.machine.Back(); err != nil {
		return err
	}
	if w.review != nil {
		w.review.Close()
		w.review = nil
	}
	return nil
}

// Close stops any live engine or review.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropLocked()
}

func hasAttempt(attempts []models.Attempt, id string) bool {
	for _, a := range attempts {
		if a.ID == id {
			return true
		}
	}
	return false
}
