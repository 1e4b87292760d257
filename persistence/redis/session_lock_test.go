package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionLock(t *testing.T) {
	lock := NewRedisSessionLock(testBaseDao(t))

	token, ok, err := lock.Acquire("s1", 1*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	// second acquire on the same session is denied
	_, ok, err = lock.Acquire("s1", 1*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// release with a foreign token is a no-op
	require.NoError(t, lock.Release("s1", "not-the-token"))
	_, ok, err = lock.Acquire("s1", 1*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// release with the right token frees the lock
	require.NoError(t, lock.Release("s1", token))
	_, ok, err = lock.Acquire("s1", 1*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// other sessions are independent
	_, ok, err = lock.Acquire("s2", 1*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
