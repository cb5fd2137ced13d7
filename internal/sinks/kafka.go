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
	"encoding/json"
	"fmt"
	"time"
)

// KafkaSink publishes every dict update as a JSON message keyed by node
// hash, for downstream consumers that want a change log rather than a
// point-in-time snapshot.
type KafkaSink struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
}

func NewKafkaSink(p KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic, defaultTimeout: 10 * time.Second}
}

func (k *KafkaSink) OnDictChange(ctx context.Context, u DictUpdate) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && k.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.defaultTimeout)
		defer cancel()
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal dict update: %w", err)
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := k.producer.Produce(ctx, k.topic, []byte(u.NodeHashHex), b, headers); err != nil {
		return fmt.Errorf("kafka produce node=%s: %w", u.NodeHashHex, err)
	}
	return nil
}

var _ EventSink = (*KafkaSink)(nil)
