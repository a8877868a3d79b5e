package radioedit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Enqueue(fmt.Sprintf("job-%d", i)))
	}
	assert.Equal(t, 100, q.Len())

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		id, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("job-%d", i), id)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	q := NewQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			_ = q.Enqueue("x")
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked without a consumer")
	}
}

func TestQueue_DequeueWaitsForEnqueue(t *testing.T) {
	q := NewQueue()
	got := make(chan string, 1)
	go func() {
		id, err := q.Dequeue(context.Background())
		assert.NoError(t, err)
		got <- id
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue("late"))

	select {
	case id := <-got:
		assert.Equal(t, "late", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dequeue")
	}
}

func TestQueue_CloseDrainsThenFails(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue("c"), ErrQueueClosed)

	ctx := context.Background()
	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	id, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := NewQueue()
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	q.Close()

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrQueueClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter not released by Close")
		}
	}
}

func TestQueue_DequeueHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
