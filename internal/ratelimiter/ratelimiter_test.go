package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		wantNil   bool
		wantBurst int
	}{
		{"Disabled", 0, 10, true, 0},
		{"Negative", -1, 10, true, 0},
		{"Normal", 50, 100, false, 100},
		{"ZeroBurstRaised", 5, 0, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.perSecond, tt.burst)
			if tt.wantNil {
				assert.Nil(t, rl)
				return
			}
			require.NotNil(t, rl)
			assert.Equal(t, tt.perSecond, rl.Limit())
			assert.Equal(t, tt.wantBurst, rl.Burst())
		})
	}
}

func TestNilLimiterNeverThrottles(t *testing.T) {
	var rl *RateLimiter
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Allow())
	}
	assert.NoError(t, rl.Wait(context.Background()))
	assert.Zero(t, rl.Limit())
	assert.Zero(t, rl.Burst())
}

func TestAllow_BurstExhausted(t *testing.T) {
	rl := New(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "token %d", i)
	}
	assert.False(t, rl.Allow())
}

func TestWait_ContextCancelled(t *testing.T) {
	rl := New(0.1, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, rl.Wait(ctx))
}

func TestWait_Refills(t *testing.T) {
	rl := New(100, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
