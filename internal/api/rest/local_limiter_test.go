package rest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalLimiterBlocksAfterBurst(t *testing.T) {
	l := NewLocalLimiter(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "alice"), "request %d", i)
	}
	assert.False(t, l.Allow(ctx, "alice"))
	assert.True(t, l.Allow(ctx, "bob"))
}
