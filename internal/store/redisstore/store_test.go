package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when REDIS_TEST_ADDR is set, e.g. localhost:6379.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	s := New(addr, "", 0, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Ping(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFirstSeen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = s.Forget(ctx, key) })

	first, err := s.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, s.Forget(ctx, key))
	first, err = s.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestFirstSeen_Unreachable(t *testing.T) {
	s := New("127.0.0.1:1", "", 0, 0)
	defer s.Close()
	assert.Equal(t, 24*time.Hour, s.ttl)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := s.FirstSeen(ctx, "x")
	assert.Error(t, err)
}
