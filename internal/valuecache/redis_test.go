package valuecache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func skipIfNoRedis(t *testing.T) {
	if os.Getenv("REDIS_TEST_ADDR") == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}
}

func TestRedisPublishAndValue(t *testing.T) {
	skipIfNoRedis(t)

	c, err := NewRedis(os.Getenv("REDIS_TEST_ADDR"), os.Getenv("REDIS_TEST_PASSWORD"), 0, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Publish(ctx, "plc1", map[string]any{"temperature": 21.5}))

	v, ok := c.Value(ctx, "plc1", "temperature")
	require.True(t, ok)
	require.InDelta(t, 21.5, v, 0.001)
}

func TestNewRedisFailsOnUnreachableServer(t *testing.T) {
	_, err := NewRedis("127.0.0.1:1", "", 0, time.Minute)
	require.Error(t, err)
}
