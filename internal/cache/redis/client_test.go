package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowKey(t *testing.T) {
	base := time.Unix(1_700_000_020, 0)

	require.Equal(t, WindowKey("10.0.0.1", time.Minute, base), WindowKey("10.0.0.1", time.Minute, base.Add(19*time.Second)))
	require.NotEqual(t, WindowKey("10.0.0.1", time.Minute, base), WindowKey("10.0.0.1", time.Minute, base.Add(20*time.Second)))
	require.NotEqual(t, WindowKey("10.0.0.1", time.Minute, base), WindowKey("10.0.0.2", time.Minute, base))
	require.Contains(t, WindowKey("10.0.0.1", time.Minute, base), "vidforensics:ratelimit:10.0.0.1:")
}

func TestWindowRemaining(t *testing.T) {
	base := time.Unix(1_700_000_020, 0)

	require.Equal(t, 20*time.Second, windowRemaining(time.Minute, base))
	require.Equal(t, time.Second, windowRemaining(time.Minute, base.Add(19*time.Second)))
}
