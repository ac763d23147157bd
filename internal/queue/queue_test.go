package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueue_PushPopFIFO(t *testing.T) {
	q := New[int](4, nil)
	for i := 0; i < 4; i++ {
		require.Equal(t, PushOK, q.Push(i))
	}
	for i := 0; i < 4; i++ {
		v, result := q.Pop()
		require.Equal(t, PopGot, result)
		require.Equal(t, i, v)
	}
}

func TestQueue_PushFullFailsFast(t *testing.T) {
	q := New[int](2, nil)
	require.Equal(t, PushOK, q.Push(1))
	require.Equal(t, PushOK, q.Push(2))
	require.Equal(t, PushFull, q.Push(3))
	require.Equal(t, 2, q.Size())
}

func TestQueue_CapacityOneAlternatesIndefinitely(t *testing.T) {
	q := New[int](1, nil)
	for i := 0; i < 100; i++ {
		require.Equal(t, PushOK, q.Push(i))
		require.Equal(t, PushFull, q.Push(i))
		v, result := q.Pop()
		require.Equal(t, PopGot, result)
		require.Equal(t, i, v)
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := New[int](2, nil)
	q.Close()
	q.Close()
	_, result := q.Pop()
	assert.Equal(t, PopDrained, result)
}

func TestQueue_CloseDrainsBeforeDrained(t *testing.T) {
	q := New[int](4, nil)
	require.Equal(t, PushOK, q.Push(7))
	q.Close()

	v, result := q.Pop()
	require.Equal(t, PopGot, result)
	require.Equal(t, 7, v)

	_, result = q.Pop()
	require.Equal(t, PopDrained, result)
}

func TestQueue_PushAfterCloseReturnsPushClosed(t *testing.T) {
	q := New[int](2, nil)
	q.Close()
	assert.Equal(t, PushClosed, q.Push(1))
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[int](1, nil)

	done := make(chan struct{})
	var got int
	var result PopResult
	go func() {
		got, result = q.Pop()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(42)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Push")
	}
	require.Equal(t, PopGot, result)
	require.Equal(t, 42, got)
}

func TestQueue_DestroyReleasesRemainingItems(t *testing.T) {
	var released []int
	var mu sync.Mutex
	release := func(v int) {
		mu.Lock()
		released = append(released, v)
		mu.Unlock()
	}

	q := New[int](4, release)
	require.Equal(t, PushOK, q.Push(1))
	require.Equal(t, PushOK, q.Push(2))
	q.Close()
	q.Destroy()

	assert.ElementsMatch(t, []int{1, 2}, released)
	assert.Equal(t, 0, q.Size())
}

// TestQueue_NoLeakNoDoubleTake is a property test: any interleaving of
// pushes and pops on a queue of varying capacity yields exactly the pushed
// items back, in order, with no duplication and no loss.
func TestQueue_NoLeakNoDoubleTake(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(t, "capacity")
		items := rapid.SliceOfN(rapid.Int(), 0, 64).Draw(t, "items")

		q := New[int](capacity, nil)

		var wg sync.WaitGroup
		var mu sync.Mutex
		var popped []int

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, result := q.Pop()
				if result == PopDrained {
					return
				}
				mu.Lock()
				popped = append(popped, v)
				mu.Unlock()
			}
		}()

		pushed := make([]int, 0, len(items))
		for _, item := range items {
			for q.Push(item) == PushFull {
				// fail-fast queue: retry until the consumer makes room
				time.Sleep(time.Microsecond)
			}
			pushed = append(pushed, item)
		}
		q.Close()
		wg.Wait()

		if len(popped) != len(pushed) {
			t.Fatalf("popped %d items, pushed %d", len(popped), len(pushed))
		}
		for i := range pushed {
			if popped[i] != pushed[i] {
				t.Fatalf("order mismatch at %d: got %d want %d", i, popped[i], pushed[i])
			}
		}
	})
}
