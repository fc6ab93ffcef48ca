package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	assert.ErrorIs(t, c.AcquireMemory(20), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1<<40))
	c.ReleaseMemory(1 << 39)
	assert.Equal(t, int64(1<<39), c.MemoryUsage())
}

func TestController_Builds(t *testing.T) {
	c := NewController(Config{MaxConcurrentBuilds: 2})

	require.NoError(t, c.AcquireBuild(t.Context()))
	require.NoError(t, c.AcquireBuild(t.Context()))
	assert.False(t, c.TryAcquireBuild())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireBuild(ctx), context.DeadlineExceeded)

	c.ReleaseBuild()
	assert.True(t, c.TryAcquireBuild())
}

func TestController_DefaultBuilds(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(4), c.Config().MaxConcurrentBuilds)
}

func TestController_NilIsUnlimited(t *testing.T) {
	var c *Controller

	assert.True(t, c.TryAcquireMemory(10))
	require.NoError(t, c.AcquireBuild(t.Context()))
	c.ReleaseBuild()
	c.ReleaseMemory(10)
	require.NoError(t, c.AcquireWrite(t.Context(), 1<<20))
	assert.Zero(t, c.MemoryUsage())
}

func TestRateLimitedWriter_LargeWrites(t *testing.T) {
	// A write larger than the burst must not fail with "exceeds burst".
	c := NewController(Config{WriteBytesPerSec: 1 << 20})

	var buf bytes.Buffer
	w := NewRateLimitedWriter(t.Context(), &buf, c)

	payload := bytes.Repeat([]byte{'x'}, 1<<20+10)
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, len(payload), buf.Len())
}
