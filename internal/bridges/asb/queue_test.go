package asb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](4)
	for i := 1; i <= 3; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 4, q.Cap())

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := NewQueue[string](2)
	assert.True(t, q.Push("a"))
	assert.True(t, q.Push("b"))
	assert.False(t, q.Push("c"))

	assert.Equal(t, uint64(2), q.Pushed())
	assert.Equal(t, uint64(1), q.Dropped())

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueSize, NewQueue[int](0).Cap())
}

func TestQueuePopHonoursContext(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	q := NewQueue[int](2)
	q.Push(7)
	q.Close()
	q.Close()

	assert.False(t, q.Push(8))

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 100
	q := NewQueue[int](producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
	assert.Zero(t, q.Dropped())
}
