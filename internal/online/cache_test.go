package online

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyreg/internal/registry"
)

func TestMemoryCache_PositiveAndNegative(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	require.NoError(t, c.Put(ctx, "N123AB", &registry.Summary{Registration: "N123AB", Source: "online"}))
	require.NoError(t, c.Put(ctx, "N999ZZ", nil))

	entry, err := c.Get(ctx, "N123AB")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.NotFound)
	assert.Equal(t, "N123AB", entry.Summary.Registration)

	entry, err = c.Get(ctx, "N999ZZ")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.NotFound)
	assert.Nil(t, entry.Summary)

	entry, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryCache_ExpiredEntriesAreDropped(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(5 * time.Millisecond)

	require.NoError(t, c.Put(ctx, "N123AB", nil))
	time.Sleep(10 * time.Millisecond)

	entry, err := c.Get(ctx, "N123AB")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCooldown_Begin(t *testing.T) {
	c := NewCooldown(time.Minute)

	assert.True(t, c.Begin("N123AB"))
	// The timestamp is stamped on Begin, not on completion, so an immediate
	// second attempt is throttled even while the first is in flight.
	assert.False(t, c.Begin("N123AB"))
	assert.True(t, c.Begin("other"))
}

func TestCooldown_WindowElapses(t *testing.T) {
	c := NewCooldown(5 * time.Millisecond)

	assert.True(t, c.Begin("N123AB"))
	time.Sleep(10 * time.Millisecond)
	assert.True(t, c.Begin("N123AB"))
}
