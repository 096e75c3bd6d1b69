// Package redis implements session.FlagStore on a Redis client, using
// SET NX with a TTL so the sweep gate works across processes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tgrimes/keygate/session"
)

const flagKeyPrefix = "keygate:flag:"

// FlagStore implements session.FlagStore over Redis.
type FlagStore struct {
	client *redis.Client
}

var _ session.FlagStore = (*FlagStore)(nil)

// NewFlagStore creates a flag store on the given client.
func NewFlagStore(client *redis.Client) *FlagStore {
	return &FlagStore{client: client}
}

// NewClient returns a configured, pinged Redis client.
func NewClient(ctx context.Context, addr, passwd string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: passwd,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (f *FlagStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := f.client.SetNX(ctx, flagKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setting flag: %w", err)
	}
	return ok, nil
}
