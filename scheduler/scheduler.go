// Package scheduler runs periodic housekeeping.
package scheduler

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Pruner drops settled ingestion jobs older than a TTL.
type Pruner interface {
	Prune(ttl time.Duration) int
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	pruner    Pruner
	ttl       time.Duration
	interval  time.Duration
}

// New creates a scheduler that prunes jobs every interval.
func New(pruner Pruner, interval, ttl time.Duration) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		pruner:    pruner,
		ttl:       ttl,
		interval:  interval,
	}
}

// Start begins running all scheduled tasks without blocking.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("prune interval must be positive, got %s", s.interval)
	}
	if _, err := s.scheduler.Every(s.interval).Do(s.pruneJobs); err != nil {
		return fmt.Errorf("failed to schedule job pruning: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) pruneJobs() {
	if n := s.pruner.Prune(s.ttl); n > 0 {
		log.Printf("Pruned %d settled ingestion job(s)", n)
	}
}
