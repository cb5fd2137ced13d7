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
)

// RedisSink mirrors a dict update into one Redis hash per node, keyed
// `shsp:dict:<node-hash-hex>`.
type RedisSink struct {
	client RedisHasher
}

func NewRedisSink(client RedisHasher) *RedisSink {
	return &RedisSink{client: client}
}

func RedisDictKey(nodeHashHex string) string {
	return fmt.Sprintf("shsp:dict:%s", nodeHashHex)
}

func (r *RedisSink) OnDictChange(ctx context.Context, u DictUpdate) error {
	if len(u.Dict) == 0 {
		return nil
	}
	values := make([]any, 0, len(u.Dict)*2)
	for k, v := range u.Dict {
		values = append(values, k, v)
	}
	if err := r.client.HSet(ctx, RedisDictKey(u.NodeHashHex), values...); err != nil {
		return fmt.Errorf("redis hset node=%s: %w", u.NodeHashHex, err)
	}
	return nil
}

var _ EventSink = (*RedisSink)(nil)
