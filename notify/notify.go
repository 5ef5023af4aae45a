// Package notify carries user-facing notices from the components that produce
// them to whatever surface shows them.
package notify

import (
	"log"
	"sync"
	"time"

	"quizzer-server/models"
)

// Sink receives user-facing notices.
type Sink interface {
	Notify(n models.Notice)
}

// Info, Success, Warning and Error build and emit a notice on s.
func Info(s Sink, msg string)    { emit(s, models.NoticeInfo, msg) }
func Success(s Sink, msg string) { emit(s, models.NoticeSuccess, msg) }
func Warning(s Sink, msg string) { emit(s, models.NoticeWarning, msg) }
func Error(s Sink, msg string)   { emit(s, models.NoticeError, msg) }

func emit(s Sink, level models.NoticeLevel, msg string) {
	if s == nil {
		return
	}
	s.Notify(models.Notice{Level: level, Message: msg, Time: time.Now()})
}

// LogSink writes every notice to the standard logger.
type LogSink struct{}

func (LogSink) Notify(n models.Notice) {
	log.Printf("[NOTICE] %s: %s", n.Level, n.Message)
}

// Multi fans a notice out to several sinks.
type Multi []Sink

func (m Multi) Notify(n models.Notice) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Hub keeps the most recent notices for the API to poll.
type Hub struct {
	mu      sync.Mutex
	limit   int
	notices []models.Notice
}

// NewHub returns a hub retaining up to limit notices.
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = 50
	}
	return &Hub{limit: limit}
}

func (h *Hub) Notify(n models.Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, n)
	if len(h.notices) > h.limit {
		h.notices = append([]models.Notice(nil), h.notices[len(h.notices)-h.limit:]...)
	}
}

// Recent returns the retained notices, oldest first.
func (h *Hub) Recent() []models.Notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Notice(nil), h.notices...)
}

// Capture records notices in memory. Tests use it to assert on what the user would see.
type Capture struct {
	mu      sync.Mutex
	Notices []models.Notice
}

func (c *Capture) Notify(n models.Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notices = append(c.Notices, n)
}

// Levels returns the level of each captured notice in order.
func (c *Capture) Levels() []models.NoticeLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.NoticeLevel, len(c.Notices))
	for i, n := range c.Notices {
		out[i] = n.Level
	}
	return out
}

// Messages returns the message of each captured notice in order.
func (c *Capture) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Notices))
	for i, n := range c.Notices {
		out[i] = n.Message
	}
	return out
}
