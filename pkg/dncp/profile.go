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

package dncp

import "time"

// Profile supplies the constants and hash/collision behavior that turn the
// generic engine into a concrete protocol (spec.md §4.6/§4.7). HNCP provides
// one (internal/hncp); SHSP runs on top of an HNCP engine and has none of its
// own.
type Profile interface {
	// HashLength is the length in bytes of a node-hash / network-hash.
	HashLength() int
	// NodeIDLength is the fixed width in bytes of a node-id.
	NodeIDLength() int

	// TrickleIMin, TrickleIMax and TrickleK are the Trickle timer bounds.
	TrickleIMin() time.Duration
	TrickleIMax() time.Duration
	TrickleK() int

	// KeepaliveInterval and KeepaliveMultiplier govern Neighbor pruning and
	// forced republication.
	KeepaliveInterval() time.Duration
	KeepaliveMultiplier() float64

	// GraceInterval is the minimum age past unreachability before a node is
	// forgotten.
	GraceInterval() time.Duration

	// PerEndpointKA and PerPeerKA select which Trickle timers exist.
	PerEndpointKA() bool
	PerPeerKA() bool

	// Hash computes the profile hash of b (HNCP: first 8 bytes of MD5).
	Hash(b []byte) []byte

	// Collision is invoked when the own node-id is seen occupied by foreign
	// content a second time (spec.md §4.5 rule 5). It must reassign the
	// engine's node-id to one not currently present in the store.
	Collision(d *Engine)
}
