package db

import (
	"context"
	"log"
	"sync"

	"quizzer-server/models"
)

// Snapshot is the ordered test list as of one completed write.
type Snapshot struct {
	Seq   uint64
	Tests []models.Test
}

// Summaries projects the snapshot to list rows.
func (s Snapshot) Summaries() []models.TestSummary {
	return Summaries(s.Tests)
}

// Summaries projects tests to list rows, keeping order.
func Summaries(tests []models.Test) []models.TestSummary {
	out := make([]models.TestSummary, len(tests))
	for i, t := range tests {
		out[i] = models.TestSummary{
			ID:            t.ID,
			Name:          t.Name,
			CreatedAt:     t.CreatedAt,
			QuestionCount: len(t.Questions),
			AttemptCount:  len(t.Attempts),
			Label:         t.Label(),
		}
	}
	return out
}

// Observable wraps a Store and publishes a fresh Snapshot to every subscriber
// after each successful write.
type Observable struct {
	Store

	pubMu sync.Mutex // serializes publish so the last delivery reflects the latest write
	mu    sync.Mutex
	seq   uint64
	next  int
	subs  map[int]*Subscription
}

// NewObservable wraps s.
func NewObservable(s Store) *Observable {
	return &Observable{Store: s, subs: make(map[int]*Subscription)}
}

// Subscription delivers snapshots on C. A subscriber that falls behind only
// ever sees the newest snapshot; older undelivered ones are dropped.
type Subscription struct {
	C <-chan Snapshot

	id int
	ch chan Snapshot
	o  *Observable
}

// Close unregisters the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	if _, ok := s.o.subs[s.id]; !ok {
		return
	}
	delete(s.o.subs, s.id)
	close(s.ch)
}

// Subscribe registers a subscriber and immediately delivers the current list.
func (o *Observable) Subscribe(ctx context.Context) (*Subscription, error) {
	tests, err := o.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	ch := make(chan Snapshot, 1)
	o.mu.Lock()
	sub := &Subscription{C: ch, id: o.next, ch: ch, o: o}
	o.next++
	o.subs[sub.id] = sub
	ch <- Snapshot{Seq: o.seq, Tests: tests}
	o.mu.Unlock()
	return sub, nil
}

func (o *Observable) publish(ctx context.Context) {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()

	tests, err := o.Store.List(context.WithoutCancel(ctx))
	if err != nil {
		log.Printf("Error listing tests for subscribers: %v", err)
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	for _, sub := range o.subs {
		snap := Snapshot{Seq: o.seq, Tests: cloneTests(tests)}
		select {
		case sub.ch <- snap:
		default:
			// drop the stale snapshot the subscriber has not read yet
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap:
			default:
			}
		}
	}
}

func cloneTests(tests []models.Test) []models.Test {
	out := make([]models.Test, len(tests))
	for i, t := range tests {
		out[i] = t.Clone()
	}
	return out
}

func (o *Observable) Add(ctx context.Context, t models.Test) error {
	if err := o.Store.Add(ctx, t); err != nil {
		return err
	}
	o.publish(ctx)
	return nil
}

func (o *Observable) Update(ctx context.Context, id string, patch models.TestPatch) error {
	if err := o.Store.Update(ctx, id, patch); err != nil {
		return err
	}
	o.publish(ctx)
	return nil
}

func (o *Observable) Put(ctx context.Context, t models.Test) error {
	if err := o.Store.Put(ctx, t); err != nil {
		return err
	}
	o.publish(ctx)
	return nil
}

func (o *Observable) Delete(ctx context.Context, id string) error {
	if err := o.Store.Delete(ctx, id); err != nil {
		return err
	}
	o.publish(ctx)
	return nil
}

func (o *Observable) BulkDelete(ctx context.Context, ids []string) error {
	if err := o.Store.BulkDelete(ctx, ids); err != nil {
		return err
	}
	o.publish(ctx)
	return nil
}

func (o *Observable) Clear(ctx context.Context) error {
	if err := o.Store.Clear(ctx); err != nil {
		return err
	}
	o.publish(ctx)
	return nil
}
