package limiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"), "burst exhausted")

	// keys are independent
	assert.True(t, rl.Allow("bob"))
	assert.Equal(t, 2, rl.keys())
}

func TestRateLimiter_Unlimited(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("alice"))
	}
}

func TestRateLimiter_NilIsPermissive(t *testing.T) {
	var rl *RateLimiter
	assert.True(t, rl.Allow("x"))
}
