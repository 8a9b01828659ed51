/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stopstrings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
)

// RedisStoreConfig holds the configuration for the RedisStore.
type RedisStoreConfig struct {
	Address string `json:"address,omitempty"` // Redis server address
}

func DefaultRedisStoreConfig() *RedisStoreConfig {
	return &RedisStoreConfig{
		Address: "redis://127.0.0.1:6379",
	}
}

// NewRedisStore creates a new RedisStore instance.
func NewRedisStore(config *RedisStoreConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisStoreConfig()
	}

	if !strings.HasPrefix(config.Address, "redis://") &&
		!strings.HasPrefix(config.Address, "rediss://") &&
		!strings.HasPrefix(config.Address, "unix://") {
		config.Address = "redis://" + config.Address
	}

	redisOpt, err := redis.ParseURL(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redisURL: %w", err)
	}

	redisClient := redis.NewClient(redisOpt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		RedisClient: redisClient,
	}, nil
}

// RedisStore implements the Store interface using Redis as the backend,
// so replicas serving the same vocabulary share built tables instead of
// each paying the build. Tables round-trip through their binary form;
// an entry that fails to decode is treated as a miss and rebuilt.
type RedisStore struct {
	RedisClient *redis.Client
}

var _ Store = &RedisStore{}

// Get returns the table cached under key, if present.
func (s *RedisStore) Get(ctx context.Context, key string) (*AlignmentTable, bool) {
	data, err := s.RedisClient.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			klog.FromContext(ctx).Error(err, "failed to get table from Redis", "key", key)
		}

		return nil, false
	}

	table := &AlignmentTable{}
	if err := table.UnmarshalBinary(data); err != nil {
		klog.FromContext(ctx).Error(err, "failed to decode cached table", "key", key)
		return nil, false
	}

	return table, true
}

// Add caches a table under key. Redis applies its own memory policy, so
// entries may be evicted at any time.
func (s *RedisStore) Add(ctx context.Context, key string, table *AlignmentTable) {
	data, err := table.MarshalBinary()
	if err != nil {
		klog.FromContext(ctx).Error(err, "failed to encode table for Redis", "key", key)
		return
	}

	if err := s.RedisClient.Set(ctx, key, data, 0).Err(); err != nil {
		klog.FromContext(ctx).Error(err, "failed to add table to Redis", "key", key)
	}
}
