// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const memoryDataExpiration = 10 * time.Second

type CacheOptions struct {
	// RedisAddr empty runs the cache in memory only
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// TieredCache keeps values in a short lived memory cache backed by redis.
type TieredCache struct {
	mem *cache.Cache
	rdb *redis.Client
}

func NewTieredCache(opts CacheOptions) *TieredCache {
	c := &TieredCache{
		mem: cache.New(memoryDataExpiration, 20*time.Second),
	}
	if opts.RedisAddr == "" {
		zap.S().Infof("No redis configured, running cache in memory only")
		return c
	}
	zap.S().Debugf("Initializing redis cache at %s (db %d)", opts.RedisAddr, opts.RedisDB)
	c.rdb = redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	return c
}

// IsRedisAvailable pings redis. A memory only cache is never available.
func (c *TieredCache) IsRedisAvailable(ctx context.Context) bool {
	if c.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	status := c.rdb.Ping(ctx)
	if status.Val() == "PONG" {
		return true
	}
	zap.S().Debugf("Redis Error: %s", status)
	return false
}

// Get attempts the memory cache first and falls back to redis
func (c *TieredCache) Get(ctx context.Context, key string) (value []byte, cached bool) {
	if v, ok := c.mem.Get(key); ok {
		return v.([]byte), true
	}
	if c.rdb == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, memoryDataExpiration)
	defer cancel()
	value, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.S().Debugf("Redis lookup of %s failed: %v", key, err)
		}
		return nil, false
	}

	// write back to memory
	c.mem.SetDefault(key, value)
	return value, true
}

// SetShortTerm stores value in both tiers with the memory expiration, for values that change often
func (c *TieredCache) SetShortTerm(ctx context.Context, key string, value []byte) {
	c.mem.SetDefault(key, value)
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, value, memoryDataExpiration).Err(); err != nil {
		zap.S().Warnf("Failed to write %s to redis: %v", key, err)
	}
}

func (c *TieredCache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
