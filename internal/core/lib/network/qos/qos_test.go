package qos

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRttEstimator(t *testing.T) {
	e := NewRttEstimator()
	assert.Equal(t, defaultInitialRTO, e.Timeout())

	// SRTT = 100, RTTVAR = 50, RTO = 300ms
	e.Update(100 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, e.Timeout())

	// RTTVAR = 0.75*50 + 0.25*100 = 62.5; SRTT = 0.875*100 + 0.125*200 = 112.5
	e.Update(200 * time.Millisecond)
	assert.Equal(t, 362500*time.Microsecond, e.Timeout())
}

func TestRttEstimator_Clamp(t *testing.T) {
	e := NewRttEstimator()
	e.Update(time.Millisecond)
	assert.Equal(t, minRTO, e.Timeout())

	e = NewRttEstimator()
	e.Update(30 * time.Second)
	assert.Equal(t, maxRTO, e.Timeout())
	assert.Equal(t, time.Second, e.Bound(time.Second))
}

func TestAdaptiveLimiter_Increase(t *testing.T) {
	l := NewAdaptiveLimiter(10, 1, 20)
	for i := 0; i < 10; i++ {
		l.OnSuccess()
	}
	assert.Equal(t, 11, l.CurrentLimit())

	for i := 0; i < 11; i++ {
		l.OnSuccess()
	}
	assert.Equal(t, 12, l.CurrentLimit())
}

func TestAdaptiveLimiter_Decrease(t *testing.T) {
	l := NewAdaptiveLimiter(100, 1, 200)
	l.OnFailure()
	assert.Equal(t, 70, l.CurrentLimit())
}

func TestAdaptiveLimiter_AcquireRelease(t *testing.T) {
	l := NewAdaptiveLimiter(2, 1, 10)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(short), context.DeadlineExceeded)

	l.Release()
	require.NoError(t, l.Acquire(ctx))
}

func TestAdaptiveLimiter_CancelledContext(t *testing.T) {
	l := NewFixedLimiter(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestAdaptiveLimiter_DebtRepaidOnRelease(t *testing.T) {
	l := NewAdaptiveLimiter(5, 1, 100)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	// 5 -> 3，令牌全部借出，记 2 个待销毁
	l.OnFailure()
	assert.Equal(t, 3, l.CurrentLimit())
	assert.EqualValues(t, 2, atomic.LoadInt32(&l.reductionNeeded))

	l.Release()
	l.Release()
	assert.EqualValues(t, 0, atomic.LoadInt32(&l.reductionNeeded))
	assert.Len(t, l.sem, 0)

	l.Release()
	assert.Len(t, l.sem, 1)
}

func TestAdaptiveLimiter_IncreaseCancelsDebt(t *testing.T) {
	l := NewAdaptiveLimiter(10, 1, 10)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	l.OnFailure() // 10 -> 7，待销毁 3
	for i := 0; i < 7; i++ {
		l.OnSuccess()
	}
	assert.Equal(t, 8, l.CurrentLimit())
	assert.EqualValues(t, 2, atomic.LoadInt32(&l.reductionNeeded))
	assert.Len(t, l.sem, 0, "扩容不能在借出令牌未归还时凭空发放")
}

func TestAdaptiveLimiter_NeverExceedsMax(t *testing.T) {
	const max = 8
	l := NewAdaptiveLimiter(4, 1, max)
	ctx := context.Background()

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		require.NoError(t, l.Acquire(ctx))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer l.Release()

			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			if i%7 == 0 {
				l.OnFailure()
			} else {
				l.OnSuccess()
			}
			atomic.AddInt32(&inFlight, -1)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(max))
}
