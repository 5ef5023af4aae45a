package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/models"
)

func receive(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	return Snapshot{}
}

func TestSubscribeDeliversInitialAndChanges(t *testing.T) {
	o := NewObservable(openMemory(t))
	ctx := context.Background()

	sub, err := o.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, receive(t, sub).Tests)

	require.NoError(t, o.Add(ctx, sampleTest("a", time.Now())))
	snap := receive(t, sub)
	require.Len(t, snap.Tests, 1)
	assert.Equal(t, "NT", snap.Summaries()[0].Label)

	tt, err := o.Get(ctx, "a")
	require.NoError(t, err)
	tt.Attempts = append(tt.Attempts, models.Attempt{ID: "x", Score: 1})
	require.NoError(t, o.Put(ctx, tt))
	snap = receive(t, sub)
	assert.Equal(t, 1, snap.Summaries()[0].AttemptCount)
	assert.Equal(t, "1/1", snap.Summaries()[0].Label)
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	o := NewObservable(openMemory(t))
	ctx := context.Background()

	sub, err := o.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, o.Add(ctx, sampleTest(id, time.Now())))
	}
	snap := receive(t, sub)
	assert.Len(t, snap.Tests, 3)
	assert.Equal(t, uint64(3), snap.Seq)
}

func TestFailedWriteDoesNotPublish(t *testing.T) {
	o := NewObservable(openMemory(t))
	ctx := context.Background()
	require.NoError(t, o.Add(ctx, sampleTest("a", time.Now())))

	sub, err := o.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	receive(t, sub)

	name := "x"
	assert.ErrorIs(t, o.Update(ctx, "missing", models.TestPatch{Name: &name}), ErrNotFound)
	select {
	case <-sub.C:
		t.Fatal("unexpected snapshot after failed write")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseUnregisters(t *testing.T) {
	o := NewObservable(openMemory(t))
	ctx := context.Background()
	sub, err := o.Subscribe(ctx)
	require.NoError(t, err)
	receive(t, sub)

	sub.Close()
	sub.Close()
	require.NoError(t, o.Add(ctx, sampleTest("a", time.Now())))

	_, ok := <-sub.C
	assert.False(t, ok)
}
