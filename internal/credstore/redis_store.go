package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kardosh/multisend/internal/model"
)

// RedisStore keeps credential blobs in Redis under "cred:<identity>".
// Used when several orchestrator restarts must share credentials without
// a shared filesystem.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(identity string) string { return "cred:" + identity }

func (r *RedisStore) Load(ctx context.Context, identity string) ([]byte, error) {
	blob, err := r.rdb.Get(ctx, key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", model.ErrStorage, identity, err)
	}
	return blob, nil
}

func (r *RedisStore) Save(ctx context.Context, identity string, blob []byte) error {
	if err := r.rdb.Set(ctx, key(identity), blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: save %s: %v", model.ErrStorage, identity, err)
	}
	return nil
}

func (r *RedisStore) Erase(ctx context.Context, identity string) error {
	if err := r.rdb.Del(ctx, key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: erase %s: %v", model.ErrStorage, identity, err)
	}
	return nil
}
