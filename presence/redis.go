package presence

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "presence:online"

// decrScript drops the field once no process holds a connection for it, so a
// concurrent Add from another process is never lost between decrement and delete.
var decrScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

// Redis shares presence between processes. The hash field of a user counts the
// processes that currently hold at least one of its connections.
type Redis struct {
	client *redis.Client
	key    string
}

var _ Store = (*Redis)(nil)

func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Add(ctx context.Context, userID string) error {
	return r.client.HIncrBy(ctx, r.key, userID, 1).Err()
}

func (r *Redis) Remove(ctx context.Context, userID string) error {
	return decrScript.Run(ctx, r.client, []string{r.key}, userID).Err()
}

func (r *Redis) Has(ctx context.Context, userID string) (bool, error) {
	return r.client.HExists(ctx, r.key, userID).Result()
}

func (r *Redis) Status(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	values, err := r.client.HMGet(ctx, r.key, userIDs...).Result()
	if err != nil {
		return nil, err
	}
	for i, id := range userIDs {
		out[id] = values[i] != nil
	}
	return out, nil
}

func (r *Redis) Online(ctx context.Context) ([]string, error) {
	ids, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
