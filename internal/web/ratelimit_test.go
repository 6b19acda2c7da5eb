package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := newRateLimiter(60, 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("198.51.100.1"))
	assert.False(t, rl.allow("198.51.100.1"))
	assert.True(t, rl.allow("198.51.100.2"), "other clients have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, rl.allow("198.51.100.1"), "one token per second refills")
}

func TestRateLimiter_SweepsIdleVisitors(t *testing.T) {
	rl := newRateLimiter(60, 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("198.51.100.1")
	rl.allow("198.51.100.2")
	assert.Equal(t, 2, rl.size())

	now = now.Add(visitorTTL + time.Second)
	rl.allow("198.51.100.3")
	assert.Equal(t, 1, rl.size())
}
