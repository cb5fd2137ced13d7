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

// Package sinks mirrors a converged SHSP dict out to external systems for
// observability. This is purely a diagnostic add-on: the engine itself
// never reads a sink back, so the protocol stays stateless across process
// restarts regardless of which sink (if any) is wired in.
package sinks

import (
	"context"
	"fmt"
)

// DictUpdate is the adapter-facing shape of one node's converged dict, as
// observed after a dncp.Engine run (spec.md §4.7's get_dict view, one node
// at a time).
type DictUpdate struct {
	// NodeHashHex identifies the publishing node (internal/shsp.Dict's
	// GetDict outer key).
	NodeHashHex string
	Dict        map[string]any
	ObservedAt  int64 // unix seconds
}

// EventSink receives DictUpdate notifications. Implementations must treat
// OnDictChange as best-effort delivery: a sink failure must never block or
// unwind protocol processing, so callers should log and continue on error
// rather than propagate it into the engine.
type EventSink interface {
	OnDictChange(ctx context.Context, u DictUpdate) error
}

// MockSink logs every update; the default, dependency-free sink.
type MockSink struct{}

func (MockSink) OnDictChange(ctx context.Context, u DictUpdate) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[sinks-mock] node=%s keys=%d\n", u.NodeHashHex, len(u.Dict))
	return nil
}

var _ EventSink = MockSink{}
