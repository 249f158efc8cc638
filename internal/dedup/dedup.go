// Copyright (c) 2026 John Earle
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

// Package dedup remembers webhook signature tokens in Redis so a captured
// request cannot be replayed while its signature is still fresh.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a seen token.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces token keys in Redis.
	keyPrefix = "inbound:token:"
)

// Filter tracks which tokens have already been used.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a token filter backed by Redis. A non-positive ttl
// selects DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

// IsNew returns true if the token has NOT been seen before.
// If true, the token is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, token string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, key(token), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

func key(token string) string {
	return keyPrefix + token
}
