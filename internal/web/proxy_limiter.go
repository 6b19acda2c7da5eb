package web

// proxy_limiter.go bounds how many raw CSV downloads run at once. Searches
// are served from the record cache, but every /api/sheet.csv request goes to
// the spreadsheet, so a burst of them would hammer the upstream.
//
// When all slots are taken a request waits up to maxWait, then fails with
// ErrProxyBusy. WaitForDrain lets shutdown wait for running downloads.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrProxyBusy is returned when no proxy slot frees up in time.
var ErrProxyBusy = errors.New("too many concurrent csv downloads, please try again later")

// Proxy limiter defaults.
const (
	DefaultProxyConcurrency = 4
	DefaultProxyMaxWait     = 5 * time.Second
)

// ProxyLimiter is a semaphore over upstream CSV downloads.
type ProxyLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewProxyLimiter allows at most maxConcurrent downloads at once.
func NewProxyLimiter(maxConcurrent int, maxWait time.Duration) *ProxyLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultProxyConcurrency
	}
	if maxWait <= 0 {
		maxWait = DefaultProxyMaxWait
	}
	return &ProxyLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *ProxyLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrProxyBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *ProxyLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ProxyLimiterStatus is the limiter state for monitoring.
type ProxyLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status reports current usage.
func (l *ProxyLimiter) Status() ProxyLimiterStatus {
	return ProxyLimiterStatus{
		Active:        int(l.active.Load()),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}

// WaitForDrain blocks until no download is running or ctx is done.
func (l *ProxyLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.active.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
