package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlePreservesOrderAndIsolatesFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	out := settle(context.Background(), items, 3, func(_ context.Context, n int) (int, error) {
		if n == 4 {
			return 0, errors.New("four")
		}
		if n == 6 {
			panic("six")
		}
		return n * 10, nil
	})
	require.Len(t, out, len(items))
	for i, o := range out {
		switch items[i] {
		case 4:
			assert.EqualError(t, o.Err, "four")
		case 6:
			require.Error(t, o.Err)
			assert.Contains(t, o.Err.Error(), "panic")
		default:
			require.NoError(t, o.Err)
			assert.Equal(t, items[i]*10, o.Value)
		}
	}
}

func TestSettleBoundsConcurrencyAndSynchronisesWindows(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
		finished atomic.Int32
	)
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}
	out := settle(context.Background(), items, 4, func(_ context.Context, n int) (int32, error) {
		// Every task of the previous windows has completed when a window starts.
		done := finished.Load()
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		finished.Add(1)
		return done, nil
	})
	assert.LessOrEqual(t, peak, 4)
	for i, o := range out {
		assert.GreaterOrEqual(t, o.Value, int32(i/4*4), "item %d", i)
	}
}

func TestSettleSkipsWindowsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	out := settle(ctx, []int{1, 2, 3, 4}, 2, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		if n == 2 {
			cancel()
		}
		return n, nil
	})
	assert.Equal(t, int32(2), calls.Load())
	assert.NoError(t, out[0].Err)
	assert.NoError(t, out[1].Err)
	assert.ErrorIs(t, out[2].Err, context.Canceled)
	assert.ErrorIs(t, out[3].Err, context.Canceled)
}

func TestSettleEmpty(t *testing.T) {
	out := settle(context.Background(), []string(nil), 5, func(context.Context, string) (string, error) {
		t.Fatal("unexpected call")
		return "", nil
	})
	assert.Empty(t, out)
}
