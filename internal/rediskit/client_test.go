package rediskit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{URL: "redis://localhost:6379/0"}.Enabled())
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "http://not-redis"})
	assert.ErrorContains(t, err, "parse url")
}

func TestOpen_Unreachable(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "redis://127.0.0.1:1/0", DialTimeout: 200 * time.Millisecond})
	assert.ErrorContains(t, err, "ping")
}

func TestOpen_Live(t *testing.T) {
	url := os.Getenv("CHATRELAY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHATRELAY_TEST_REDIS_URL not set")
	}
	client, err := Open(context.Background(), Config{URL: url})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}
