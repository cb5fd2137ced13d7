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
	"database/sql"
	"errors"
	"fmt"
)

// Options holds the knobs needed to build any of the supported sinks.
type Options struct {
	RedisAddr  string
	KafkaTopic string
	PostgresDB *sql.DB
}

// Build constructs an EventSink from a string selector. Supported adapters:
//   - "", "mock": in-process logger (default)
//   - "redis": HSET-per-node, using a real client when RedisAddr is set or
//     a logging stand-in otherwise
//   - "kafka": publishes a change log of dict snapshots
//   - "postgres": upserts the latest snapshot per node; requires
//     opts.PostgresDB
func Build(adapter string, opts Options) (EventSink, error) {
	switch adapter {
	case "", "mock":
		return MockSink{}, nil
	case "redis":
		var client RedisHasher
		if opts.RedisAddr != "" {
			client = NewGoRedisHasher(opts.RedisAddr)
		} else {
			client = LoggingRedisHasher{}
		}
		return NewRedisSink(client), nil
	case "kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "shsp-dict-updates"
		}
		return NewKafkaSink(LoggingKafkaProducer{}, topic), nil
	case "postgres":
		if opts.PostgresDB == nil {
			return nil, errors.New("postgres adapter requires opts.PostgresDB")
		}
		return NewPostgresSink(opts.PostgresDB), nil
	default:
		return nil, fmt.Errorf("unknown sink adapter: %s", adapter)
	}
}
