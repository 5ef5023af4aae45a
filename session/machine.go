// Package session tracks which test is selected and what the user is doing
// with it, and drives the taking engine and review screens for that test.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an action does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoTest is returned when an action needs a selected test.
	ErrNoTest = errors.New("no test selected")
)

// State is where the selected test is in its cycle.
type State string

const (
	NoTest     State = "no-test"
	NotStarted State = "not-started"
	Taking     State = "taking"
	Summary    State = "summary"
	Reviewing  State = "reviewing"
)

// Machine is the session state machine. It is not safe for concurrent use;
// Workspace guards it.
type Machine struct {
	state  State
	testID string
}

// NewMachine starts with nothing selected.
func NewMachine() *Machine { return &Machine{state: NoTest} }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// TestID returns the selected test id, empty in NoTest.
func (m *Machine) TestID() string { return m.testID }

// Select points the machine at a test, dropping any session. Tests with
// attempts land on Summary, fresh ones on NotStarted.
func (m *Machine) Select(testID string, attempts int) State {
	m.testID = testID
	m.state = restingState(attempts)
	return m.state
}

// Deselect returns to NoTest.
func (m *Machine) Deselect() {
	m.testID = ""
	m.state = NoTest
}

func restingState(attempts int) State {
	if attempts > 0 {
		return Summary
	}
	return NotStarted
}

// Start begins the first attempt.
func (m *Machine) Start() error { return m.move(Taking, NotStarted) }

// Finish ends the running attempt after it was recorded.
func (m *Machine) Finish() error { return m.move(Summary, Taking) }

// Retake begins another attempt from the summary.
func (m *Machine) Retake() error { return m.move(Taking, Summary) }

// Review opens the latest attempt.
func (m *Machine) Review() error { return m.move(Reviewing, Summary) }

// Back leaves the review for the summary.
func (m *Machine) Back() error { return m.move(Summary, Reviewing) }

// Refresh reconciles the state with the stored attempt count of the selected
// test, for example after another caller cleared it. A resting state follows the
// attempt count; Taking and Reviewing are left alone.
func (m *Machine) Refresh(attempts int) {
	if m.state == NotStarted || m.state == Summary {
		m.state = restingState(attempts)
	}
}

func (m *Machine) move(to State, from ...State) error {
	if m.state == NoTest {
		return ErrNoTest
	}
	for _, f := range from {
		if m.state == f {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.state, to)
}
