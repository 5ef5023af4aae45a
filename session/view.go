package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"quizzer-server/db"
	"quizzer-server/exam"
	"quizzer-server/models"
	"quizzer-server/notify"
	"quizzer-server/review"
	"quizzer-server/taking"
)

// View is everything the client needs to render the session.
type View struct {
	State   State               `json:"state"`
	Test    *models.TestSummary `json:"test,omitempty"`
	Summary *exam.Summary       `json:"summary,omitempty"`
	Taking  *taking.View        `json:"taking,omitempty"`
	Review  *review.View        `json:"review,omitempty"`
}

// View renders the current state.
func (w *Workspace) View() View {
	w.mu.Lock()
	state := w.machine.State()
	test := w.test.Clone()
	eng, rev := w.engine, w.review
	w.mu.Unlock()

	v := View{State: state}
	if state == NoTest {
		return v
	}
	summaries := db.Summaries([]models.Test{test})
	v.Test = &summaries[0]

	switch {
	case eng != nil:
		tv := eng.View()
		v.Taking = &tv
	case rev != nil:
		rv := rev.View()
		v.Review = &rv
	case state == Summary:
		if s, err := exam.Summarize(test); err == nil {
			v.Summary = &s
		}
	}
	return v
}

// Watch keeps the selected test in step with store snapshots until ctx is
// done or the channel closes. A deleted selection drops back to NoTest.
func (w *Workspace) Watch(ctx context.Context, snapshots <-chan db.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			w.apply(snap)
		}
	}
}

func (w *Workspace) apply(snap db.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.machine.TestID()
	if id == "" {
		return
	}
	for _, t := range snap.Tests {
		if t.ID != id {
			continue
		}
		w.test.Name = t.Name
		if len(t.Attempts) >= len(w.test.Attempts) || w.engine == nil {
			w.test.Attempts = t.Attempts
		}
		w.machine.Refresh(len(w.test.Attempts))
		return
	}
	log.Printf("Selected test %s was deleted", id)
	w.dropLocked()
	w.machine.Deselect()
	w.test = models.Test{}
}

// CloneTest creates a reshuffled copy of test id and starts taking it.
func (w *Workspace) CloneTest(ctx context.Context, id string, opts models.SessionOptions) (models.Test, error) {
	src, err := w.store.Get(ctx, id)
	if err != nil {
		return models.Test{}, err
	}
	return w.takeDerived(ctx, exam.CloneShuffled(src, exam.Derivative{}), opts)
}

// Mistakes creates a test from the questions the latest attempt of id got
// wrong and starts taking it. With nothing wrong no test is created.
func (w *Workspace) Mistakes(ctx context.Context, id string, opts models.SessionOptions) (models.Test, error) {
	src, err := w.store.Get(ctx, id)
	if err != nil {
		return models.Test{}, err
	}
	derived, err := exam.MistakesOnly(src, exam.Derivative{})
	if errors.Is(err, exam.ErrNoMistakes) {
		notify.Info(w.sink, "You got everything right.")
		return models.Test{}, err
	}
	if err != nil {
		return models.Test{}, err
	}
	return w.takeDerived(ctx, derived, opts)
}

func (w *Workspace) takeDerived(ctx context.Context, t models.Test, opts models.SessionOptions) (models.Test, error) {
	if err := w.store.Add(ctx, t); err != nil {
		notify.Error(w.sink, "Could not save the new test.")
		return models.Test{}, fmt.Errorf("saving derived test: %w", err)
	}
	db.LogEvent(ctx, w.store, "session", t.ID, fmt.Sprintf("created %q", t.Name))
	if _, err := w.Select(ctx, t.ID); err != nil {
		return t, err
	}
	return t, w.Start(opts)
}
