package web

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyLimiter_Defaults(t *testing.T) {
	l := NewProxyLimiter(0, 0)
	assert.Equal(t, DefaultProxyConcurrency, l.Status().MaxConcurrent)
	assert.Equal(t, DefaultProxyMaxWait, l.maxWait)
}

func TestProxyLimiter_BusyAfterWait(t *testing.T) {
	l := NewProxyLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, ProxyLimiterStatus{Active: 1, Available: 0, MaxConcurrent: 1}, l.Status())

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, ErrProxyBusy)

	l.Release()
	require.NoError(t, l.Acquire(ctx))
	l.Release()
	assert.Equal(t, 0, l.Status().Active)
}

func TestProxyLimiter_CallerCancel(t *testing.T) {
	l := NewProxyLimiter(1, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestProxyLimiter_ConcurrentUseStaysBounded(t *testing.T) {
	const limit = 3
	l := NewProxyLimiter(limit, time.Second)

	var (
		mu   sync.Mutex
		peak int
		wg   sync.WaitGroup
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			peak = max(peak, l.Status().Active)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			l.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, limit)
	assert.Equal(t, 0, l.Status().Active)
}

func TestProxyLimiter_WaitForDrain(t *testing.T) {
	l := NewProxyLimiter(2, time.Second)
	require.NoError(t, l.Acquire(context.Background()))

	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.WaitForDrain(ctx))
}
