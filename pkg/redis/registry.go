package redis

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "sentinel:monitoring:"

// Registry records one monitoring job per video in redis so several API replicas agree on ownership.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRegistry creates a registry. A zero ttl keeps entries until they are released.
func NewRegistry(addr, password string, db int, ttl time.Duration) *Registry {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Registry{client: client, ttl: ttl}
}

func (r *Registry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Registry) Acquire(ctx context.Context, videoId string) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+videoId, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}

func (r *Registry) Release(ctx context.Context, videoId string) error {
	return r.client.Del(ctx, keyPrefix+videoId).Err()
}

func (r *Registry) Active(ctx context.Context, videoId string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+videoId).Result()
	return n > 0, err
}

func (r *Registry) List(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}
