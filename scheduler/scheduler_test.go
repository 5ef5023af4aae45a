package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPruner struct {
	calls int32
	ttl   atomic.Value
}

func (c *countingPruner) Prune(ttl time.Duration) int {
	atomic.AddInt32(&c.calls, 1)
	c.ttl.Store(ttl)
	return 1
}

func TestSchedulerPrunesPeriodically(t *testing.T) {
	p := &countingPruner{}
	s := New(p, 20*time.Millisecond, time.Minute)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&p.calls) >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, time.Minute, p.ttl.Load())
}

func TestSchedulerRejectsZeroInterval(t *testing.T) {
	assert.Error(t, New(&countingPruner{}, 0, time.Minute).Start())
}
