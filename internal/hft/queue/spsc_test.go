package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSPSCRejectsNonPowerOfTwo(t *testing.T) {
	require.Panics(t, func() { NewSPSC[int](3) })
}

func TestPushPopFIFOOrder(t *testing.T) {
	q := NewSPSC[int](4)
	require.NoError(t, q.TryPush(1))
	require.NoError(t, q.TryPush(2))
	require.NoError(t, q.TryPush(3))

	v, err := q.TryPop()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = q.TryPop()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestTryPushReturnsErrFullAtCapacity(t *testing.T) {
	q := NewSPSC[int](2)
	require.NoError(t, q.TryPush(1))
	require.NoError(t, q.TryPush(2))
	require.ErrorIs(t, q.TryPush(3), ErrFull)
}

func TestTryPopReturnsErrEmpty(t *testing.T) {
	q := NewSPSC[int](2)
	_, err := q.TryPop()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestWrapAroundReusesSlots(t *testing.T) {
	q := NewSPSC[int](2)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.TryPush(i))
		v, err := q.TryPop()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestDrainFuncConsumesAll(t *testing.T) {
	q := NewSPSC[int](8)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.TryPush(i))
	}
	var got []int
	n := q.DrainFunc(func(v int) bool {
		got = append(got, v)
		return true
	})
	require.Equal(t, 5, n)
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := NewSPSC[int](1024)
	const total = 100000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for q.TryPush(i) == ErrFull {
			}
		}
	}()

	received := make([]int, 0, total)
	go func() {
		defer wg.Done()
		for len(received) < total {
			v, err := q.TryPop()
			if err != nil {
				continue
			}
			received = append(received, v)
		}
	}()

	wg.Wait()
	require.Len(t, received, total)
	for i, v := range received {
		require.Equal(t, i, v)
	}
}
