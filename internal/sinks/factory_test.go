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
	"testing"
)

func TestBuildDefaultMock(t *testing.T) {
	s, err := Build("", Options{})
	if err != nil || s == nil {
		t.Fatalf("unexpected: %v %v", s, err)
	}
	if err := s.OnDictChange(context.Background(), DictUpdate{NodeHashHex: "ab", Dict: map[string]any{"k": "v"}}); err != nil {
		t.Fatalf("mock sink should never fail: %v", err)
	}
}

func TestBuildRedisLoggingAndReal(t *testing.T) {
	s, err := Build("redis", Options{})
	if err != nil || s == nil {
		t.Fatalf("unexpected: %v %v", s, err)
	}
	s2, err := Build("redis", Options{RedisAddr: "127.0.0.1:0"})
	if err != nil || s2 == nil {
		t.Fatalf("unexpected: %v %v", s2, err)
	}
}

func TestBuildKafka(t *testing.T) {
	s, err := Build("kafka", Options{KafkaTopic: "t"})
	if err != nil || s == nil {
		t.Fatalf("unexpected: %v %v", s, err)
	}
}

func TestBuildPostgresRequiresDB(t *testing.T) {
	s, err := Build("postgres", Options{})
	if err == nil || s != nil {
		t.Fatalf("expected error when PostgresDB is nil")
	}
}

func TestBuildUnknownAdapter(t *testing.T) {
	if _, err := Build("does-not-exist", Options{}); err == nil {
		t.Fatalf("expected error for unknown adapter")
	}
}

func TestRedisSinkSkipsEmptyDict(t *testing.T) {
	captured := false
	client := captureRedisHasher{onHSet: func() { captured = true }}
	s := NewRedisSink(client)
	if err := s.OnDictChange(context.Background(), DictUpdate{NodeHashHex: "ab"}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if captured {
		t.Fatalf("expected no HSet call for an empty dict")
	}
}

type captureRedisHasher struct {
	onHSet func()
}

func (c captureRedisHasher) HSet(ctx context.Context, key string, values ...any) error {
	c.onHSet()
	return nil
}
