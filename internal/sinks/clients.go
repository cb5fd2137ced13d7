// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package sinks

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisHasher abstracts the minimal surface needed from a Redis client: one
// hash-field write per dict key.
type RedisHasher interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// LoggingRedisHasher is a dependency-free stand-in that just logs the
// write, letting Build select the redis adapter without a live server. Not
// for production use.
type LoggingRedisHasher struct{}

func (LoggingRedisHasher) HSet(ctx context.Context, key string, values ...any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[redis-demo] HSET %s %v\n", key, values)
	return nil
}

// GoRedisHasher wraps a real github.com/redis/go-redis/v9 client.
type GoRedisHasher struct{ c *redis.Client }

func NewGoRedisHasher(addr string) *GoRedisHasher {
	return &GoRedisHasher{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisHasher) HSet(ctx context.Context, key string, values ...any) error {
	return g.c.HSet(ctx, key, values...).Err()
}

// KafkaProducer is a minimal abstraction over a Kafka client; no concrete
// client library is pulled in.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// LoggingKafkaProducer is a dependency-free stand-in producer. Not for
// production use.
type LoggingKafkaProducer struct{}

func (LoggingKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[kafka-demo] TOPIC=%s KEY=%s VALUE=%s HEADERS=%v\n", topic, string(key), truncate(string(value), 256), headers)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
