package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue[int](0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := q.Enqueue(ctx, i)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestQueue_EnqueueBlocksWhenFull(t *testing.T) {
	q := newQueue[int](1)

	ok, err := q.Enqueue(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err = q.Enqueue(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_EnqueueResumesAfterDequeue(t *testing.T) {
	q := newQueue[int](1)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, 1)
	require.NoError(t, err)

	done := make(chan bool)
	go func() {
		ok, _ := q.Enqueue(ctx, 2)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, got)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("blocked producer was not released")
	}
	got, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestQueue_PushIgnoresCapacity(t *testing.T) {
	q := newQueue[int](1)
	_, err := q.Enqueue(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, q.Push(2))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_OfferNeverWaits(t *testing.T) {
	q := newQueue[int](1)

	ok, closed := q.Offer(1)
	assert.True(t, ok)
	assert.False(t, closed)

	ok, closed = q.Offer(2)
	assert.False(t, ok, "full queue refuses the item")
	assert.False(t, closed)
	assert.Equal(t, 1, q.Len())

	q.Close()
	ok, closed = q.Offer(3)
	assert.False(t, ok)
	assert.True(t, closed)
}

func TestQueue_CloseWakesProducers(t *testing.T) {
	q := newQueue[int](1)
	_, err := q.Enqueue(context.Background(), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := q.Enqueue(context.Background(), 9)
			results <- ok
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(results)

	for ok := range results {
		assert.False(t, ok, "enqueue after close should fail")
	}
	assert.False(t, q.Push(3))
}

func TestQueue_CloseKeepsQueuedItems(t *testing.T) {
	q := newQueue[string](0)
	q.Push("a")
	q.Close()

	assert.False(t, q.Drained())
	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a", got)
	assert.True(t, q.Drained())

	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait channel should be closed")
	}
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("run-1", "run-2")
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-2", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
}
