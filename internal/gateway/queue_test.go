package gateway

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameN(n int) outboundFrame {
	return outboundFrame{Type: frameUpdate, Topic: fmt.Sprintf("truck:t%d", n)}
}

func TestSendQueueDropsOldest(t *testing.T) {
	q := newSendQueue(3)

	for i := 1; i <= 10; i++ {
		assert.True(t, q.Push(frameN(i)))
	}

	// capacity 3, ten pushes: only the three newest remain, in order
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(7), q.Dropped())

	for _, want := range []int{8, 9, 10} {
		f, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, frameN(want), f)
	}
	assert.Zero(t, q.Len())
}

func TestSendQueuePopBlocksUntilPush(t *testing.T) {
	q := newSendQueue(4)

	got := make(chan outboundFrame, 1)
	go func() {
		f, ok := q.Pop()
		if ok {
			got <- f
		}
	}()

	q.Push(frameN(1))
	assert.Equal(t, frameN(1), <-got)
}

func TestSendQueueCloseDrains(t *testing.T) {
	q := newSendQueue(4)
	q.Push(frameN(1))
	q.Push(frameN(2))
	q.Close()

	// buffered frames remain poppable after close
	f, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, frameN(1), f)
	f, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, frameN(2), f)

	// then the queue reports exhaustion
	_, ok = q.Pop()
	assert.False(t, ok)

	// pushes after close are refused
	assert.False(t, q.Push(frameN(3)))

	// closing twice is fine
	q.Close()
}

func TestSendQueueCloseWakesBlockedPop(t *testing.T) {
	q := newSendQueue(4)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	q.Close()
	assert.False(t, <-done)
}

func TestSendQueueDefaultCapacity(t *testing.T) {
	q := newSendQueue(0)
	for i := 0; i < 20; i++ {
		q.Push(frameN(i))
	}
	assert.Equal(t, 16, q.Len())
	assert.Equal(t, uint64(4), q.Dropped())
}

func TestSendQueueConcurrentProducers(t *testing.T) {
	q := newSendQueue(8)

	var wg sync.WaitGroup
	const producers, perProducer = 4, 100
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(frameN(i))
			}
		}()
	}
	wg.Wait()

	// nothing lost without being counted: buffered + dropped = pushed
	assert.Equal(t, uint64(producers*perProducer), uint64(q.Len())+q.Dropped())
	assert.LessOrEqual(t, q.Len(), 8)
}
