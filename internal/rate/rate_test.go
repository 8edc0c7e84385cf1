package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dropDatabas3/authkit/internal/cache"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(cache.NewMemory(""), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "1.2.3.4"))
	}
	assert.False(t, l.Allow(ctx, "1.2.3.4"))

	// Separate keys have separate budgets.
	assert.True(t, l.Allow(ctx, "5.6.7.8"))
}

func TestDefaults(t *testing.T) {
	l := New(cache.NewMemory(""), 0, 0)
	assert.Equal(t, 60, l.limit)
	assert.Equal(t, time.Minute, l.window)
}
