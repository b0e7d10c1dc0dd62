package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/tools"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "1.5 MiB", formatBytes(3*1024*1024/2))
	assert.Equal(t, "2.0 GiB", formatBytes(2*1024*1024*1024))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5m", formatUptime(5*time.Minute))
	assert.Equal(t, "3h 20m", formatUptime(3*time.Hour+20*time.Minute))
	assert.Equal(t, "2d 1h", formatUptime(49*time.Hour))
}

func TestHandleCachesResult(t *testing.T) {
	fixed := time.Now()
	c := &collector{now: func() time.Time { return fixed }}

	first, err := c.handle(context.Background(), tools.Input{})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Within the TTL the cached snapshot is returned as-is.
	second, err := c.handle(context.Background(), tools.Input{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// After the TTL a fresh snapshot is collected.
	fixed = fixed.Add(cacheTTL + time.Second)
	third, err := c.handle(context.Background(), tools.Input{})
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

func TestCollectReportsSections(t *testing.T) {
	out, err := collect(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "memory:")
}
