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

import (
	"time"

	"dncp/pkg/tlv"
)

// Peer is an opaque token identifying where a frame was sent/received:
// the engine and its profile never interpret it, they only compare tokens
// for equality and hand them back on reply (spec.md §6 "the core treats
// source/destination as opaque endpoint tokens").
type Peer interface{}

// TimerHandle is returned by System.Schedule; Cancel must be idempotent-safe
// to call on an already-fired timer (a no-op).
type TimerHandle interface {
	Cancel()
}

// System is the external collaborator DNCP delegates all I/O and timing to
// (spec.md §6 SystemInterface). The engine never touches a clock, a timer,
// or a socket directly, which is what keeps the run loop single-threaded
// and deterministic for tests (see internal/transport/simnet).
type System interface {
	// Now returns the current time. Implementations are free to use a
	// simulated clock; the engine only ever compares values it obtained
	// from this method.
	Now() time.Time

	// Schedule arranges for cb to run after dt. The returned handle can
	// cancel the timer before it fires. Implementations must deliver the
	// callback on the same goroutine that drives the engine (spec.md §5
	// "the engine never runs re-entrantly").
	Schedule(dt time.Duration, cb func()) TimerHandle

	// Send transmits l on ep. dst == nil means multicast on ep; a non-nil
	// dst means unicast to a peer token previously observed as a src on
	// Received.
	Send(ep *Endpoint, src, dst Peer, l []tlv.TLV)
}
