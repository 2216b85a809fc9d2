package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const noncePrefix = keyPrefix + "seen:"

// NonceStore remembers ids (processor event ids, mostly) for a TTL using SET NX.
type NonceStore struct {
	client *goredis.Client
}

func NewNonceStore(client *goredis.Client) *NonceStore {
	return &NonceStore{client: client}
}

// CheckAndSet reports true the first time scope/id is seen inside the TTL,
// false on every repeat.
func (s *NonceStore) CheckAndSet(ctx context.Context, scope, id string, ttl time.Duration) (bool, error) {
	key := noncePrefix + scope + ":" + id
	res, err := s.client.SetArgs(ctx, key, 1, goredis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("nonce check %s: %w", scope, err)
	}
	return res == "OK", nil
}

func (s *NonceStore) Forget(ctx context.Context, scope, id string) error {
	if err := s.client.Del(ctx, noncePrefix+scope+":"+id).Err(); err != nil {
		return fmt.Errorf("nonce forget %s: %w", scope, err)
	}
	return nil
}
