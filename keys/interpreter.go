// Package keys turns raw key presses into session commands.
//
// The interpreter has exactly one interaction mode at a time. Idle routes keys
// to ordinary shortcuts; JumpBuffering, SubmitConfirm and Searching capture
// every key until they exit, so shortcuts never fire while one of them is active.
package keys

import (
	"strconv"
	"sync"
	"time"
	"unicode/utf8"
)

// Mode is the current interaction mode.
type Mode int

const (
	Idle Mode = iota
	JumpBuffering
	SubmitConfirm
	Searching
)

func (m Mode) String() string {
	switch m {
	case JumpBuffering:
		return "jump"
	case SubmitConfirm:
		return "confirm"
	case Searching:
		return "search"
	default:
		return "idle"
	}
}

// Kind identifies a command.
type Kind int

const (
	None Kind = iota
	// ToggleChoice carries the 1-based visible choice in N.
	ToggleChoice
	Prev
	Next
	// JumpTo carries the 1-based question number in N.
	JumpTo
	ToggleMark
	SubmitPrompt
	Submit
	SubmitDeclined
	SearchOpen
	// SearchQuery carries the full query text.
	SearchQuery
	SearchNext
	SearchPrev
	SearchClose
	// Cancelled means Escape left JumpBuffering.
	Cancelled
)

var kindNames = [...]string{
	None:           "none",
	ToggleChoice:   "toggle-choice",
	Prev:           "prev",
	Next:           "next",
	JumpTo:         "jump-to",
	ToggleMark:     "toggle-mark",
	SubmitPrompt:   "submit-prompt",
	Submit:         "submit",
	SubmitDeclined: "submit-declined",
	SearchOpen:     "search-open",
	SearchQuery:    "search-query",
	SearchNext:     "search-next",
	SearchPrev:     "search-prev",
	SearchClose:    "search-close",
	Cancelled:      "cancelled",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Command is what a key press means for the session.
type Command struct {
	Kind  Kind
	N     int
	Query string
}

// Keymap names the keys bound to each action. An empty binding disables it.
type Keymap struct {
	Prev, Next string
	Jump       string
	Mark       string
	Search     string
	Submit     string
	Yes, No    string
	Escape     string
	Backspace  string
	Enter      string
	ShiftEnter string
	Choices    bool // digits toggle choices in Idle
}

// TakingKeymap is the default binding set while taking a test.
func TakingKeymap() Keymap {
	return Keymap{
		Prev:       "ArrowLeft",
		Next:       "ArrowRight",
		Jump:       "ArrowUp",
		Mark:       "m",
		Search:     "/",
		Submit:     "Enter",
		Yes:        "y",
		No:         "n",
		Escape:     "Escape",
		Backspace:  "Backspace",
		Enter:      "Enter",
		ShiftEnter: "Shift+Enter",
		Choices:    true,
	}
}

// ReviewKeymap drops choice toggles, marks and submission.
func ReviewKeymap() Keymap {
	km := TakingKeymap()
	km.Mark = ""
	km.Submit = ""
	km.Yes, km.No = "", ""
	km.Choices = false
	return km
}

// DefaultDebounce is how long the jump buffer waits for another digit.
const DefaultDebounce = 500 * time.Millisecond

// Interpreter is the keyboard state machine. Press is synchronous; a jump
// resolved by the debounce timer is delivered through the flush callback
// from the timer's goroutine, never while the interpreter's lock is held.
type Interpreter struct {
	mu       sync.Mutex
	km       Keymap
	debounce time.Duration
	flush    func(Command)

	mode   Mode
	buffer string
	query  string
	timer  *time.Timer
	gen    uint64 // invalidates timers armed before the last transition
}

// New returns an interpreter in Idle. flush receives the JumpTo command once
// the debounce window closes; it may be nil.
func New(km Keymap, debounce time.Duration, flush func(Command)) *Interpreter {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Interpreter{km: km, debounce: debounce, flush: flush}
}

// Mode returns the active mode.
func (in *Interpreter) Mode() Mode {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mode
}

// Buffer returns the digits typed so far in JumpBuffering.
func (in *Interpreter) Buffer() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.buffer
}

// Query returns the current search text.
func (in *Interpreter) Query() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.query
}

// Press interprets one key. ok is false when the key has no effect.
func (in *Interpreter) Press(key string) (Command, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch in.mode {
	case JumpBuffering:
		return in.pressJump(key)
	case SubmitConfirm:
		return in.pressConfirm(key)
	case Searching:
		return in.pressSearch(key)
	default:
		return in.pressIdle(key)
	}
}

// Reset drops any exclusive mode without emitting commands.
func (in *Interpreter) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.toIdle()
}

func (in *Interpreter) pressIdle(key string) (Command, bool) {
	km := in.km
	switch {
	case key == "":
		return Command{}, false
	case key == km.Prev:
		return Command{Kind: Prev}, true
	case key == km.Next:
		return Command{Kind: Next}, true
	case key == km.Jump:
		in.mode = JumpBuffering
		in.buffer = ""
		in.arm()
		return Command{}, false
	case key == km.Mark:
		return Command{Kind: ToggleMark}, true
	case key == km.Search:
		in.mode = Searching
		in.query = ""
		return Command{Kind: SearchOpen}, true
	case key == km.Submit:
		in.mode = SubmitConfirm
		return Command{Kind: SubmitPrompt}, true
	case km.Choices && len(key) == 1 && key[0] >= '1' && key[0] <= '9':
		return Command{Kind: ToggleChoice, N: int(key[0] - '0')}, true
	}
	return Command{}, false
}

func (in *Interpreter) pressJump(key string) (Command, bool) {
	if key == in.km.Escape {
		in.toIdle()
		return Command{Kind: Cancelled}, true
	}
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		in.buffer += key
		in.arm()
	}
	return Command{}, false
}

func (in *Interpreter) pressConfirm(key string) (Command, bool) {
	switch key {
	case in.km.Yes:
		in.toIdle()
		return Command{Kind: Submit}, true
	case in.km.No, in.km.Escape:
		in.toIdle()
		return Command{Kind: SubmitDeclined}, true
	}
	return Command{}, false
}

func (in *Interpreter) pressSearch(key string) (Command, bool) {
	switch {
	case key == in.km.Escape:
		in.toIdle()
		return Command{Kind: SearchClose}, true
	case key == in.km.ShiftEnter:
		return Command{Kind: SearchPrev}, true
	case key == in.km.Enter:
		return Command{Kind: SearchNext}, true
	case key == in.km.Backspace:
		if in.query == "" {
			return Command{}, false
		}
		_, size := utf8.DecodeLastRuneInString(in.query)
		in.query = in.query[:len(in.query)-size]
		return Command{Kind: SearchQuery, Query: in.query}, true
	case utf8.RuneCountInString(key) == 1:
		in.query += key
		return Command{Kind: SearchQuery, Query: in.query}, true
	}
	return Command{}, false
}

// SetQuery replaces the search text while Searching, for pasted input.
func (in *Interpreter) SetQuery(q string) (Command, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.mode != Searching {
		return Command{}, false
	}
	in.query = q
	return Command{Kind: SearchQuery, Query: q}, true
}

// arm restarts the debounce timer. Callers hold in.mu.
func (in *Interpreter) arm() {
	if in.timer != nil {
		in.timer.Stop()
	}
	in.gen++
	gen := in.gen
	in.timer = time.AfterFunc(in.debounce, func() { in.expire(gen) })
}

func (in *Interpreter) expire(gen uint64) {
	in.mu.Lock()
	if gen != in.gen || in.mode != JumpBuffering {
		in.mu.Unlock()
		return
	}
	buf := in.buffer
	in.toIdle()
	flush := in.flush
	in.mu.Unlock()

	n, err := strconv.Atoi(buf)
	if err != nil || n < 1 || flush == nil {
		return
	}
	flush(Command{Kind: JumpTo, N: n})
}

// toIdle clears every mode-owned resource. Callers hold in.mu.
func (in *Interpreter) toIdle() {
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
	in.gen++
	in.mode = Idle
	in.buffer = ""
	in.query = ""
}
