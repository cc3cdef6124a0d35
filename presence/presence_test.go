package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*Redis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ""), client
}

func TestStore_AddRemoveStatus(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemory(),
	}
	r, _ := newRedis(t)
	stores["redis"] = r

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, "u1"))
			require.NoError(t, s.Add(ctx, "u2"))

			has, err := s.Has(ctx, "u1")
			require.NoError(t, err)
			require.True(t, has)

			status, err := s.Status(ctx, []string{"u1", "u2", "u3"})
			require.NoError(t, err)
			require.Equal(t, map[string]bool{"u1": true, "u2": true, "u3": false}, status)

			require.NoError(t, s.Remove(ctx, "u1"))
			has, err = s.Has(ctx, "u1")
			require.NoError(t, err)
			require.False(t, has)

			online, err := s.Online(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"u2"}, online)

			status, err = s.Status(ctx, nil)
			require.NoError(t, err)
			require.Empty(t, status)
		})
	}
}

func TestRedis_SharedBetweenProcesses(t *testing.T) {
	ctx := context.Background()
	first, client := newRedis(t)
	second := NewRedis(client, "")

	require.NoError(t, first.Add(ctx, "u1"))
	require.NoError(t, second.Add(ctx, "u1"))

	require.NoError(t, first.Remove(ctx, "u1"))
	has, err := second.Has(ctx, "u1")
	require.NoError(t, err)
	require.True(t, has, "still connected through the second process")

	require.NoError(t, second.Remove(ctx, "u1"))
	has, err = first.Has(ctx, "u1")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, first.Remove(ctx, "u1"))
	n, err := client.HLen(ctx, DefaultKey).Result()
	require.NoError(t, err)
	require.Zero(t, n)
}
