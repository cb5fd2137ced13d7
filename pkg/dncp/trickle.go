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
	"math/rand"
	"time"
)

// trickle implements the RFC-6206-style adaptive suppression timer used by
// each endpoint (and, with per-peer keepalives, each Neighbor) to decide
// when to flood (spec.md §4.3).
//
// Open question (spec.md §9): when a tick both crosses interval_end_time and
// is due for a forced keepalive, we double first, then force the keepalive,
// then fall through to a normal consistency-gated send check, matching the
// order spec.md recommends.
type trickle struct {
	imin, imax time.Duration
	k          int
	keepalive  time.Duration

	i               time.Duration
	c               int
	sendTime        time.Time
	intervalEndTime time.Time
	lastSent        time.Time

	now  func() time.Time
	send func()
	rand func() float64
}

func newTrickle(imin, imax time.Duration, k int, keepalive time.Duration, now func() time.Time, send func()) *trickle {
	t := &trickle{
		imin:      imin,
		imax:      imax,
		k:         k,
		keepalive: keepalive,
		now:       now,
		send:      send,
		rand:      rand.Float64,
	}
	t.lastSent = now()
	t.setI(0)
	return t
}

// setI clamps i to [I_min, I_max], draws a new random send point, and resets
// the consistency counter (spec.md §4.3 set_i).
func (t *trickle) setI(i time.Duration) {
	now := t.now()
	if i < t.imin {
		i = t.imin
	}
	if i > t.imax {
		i = t.imax
	}
	t.i = i
	frac := (1 + t.rand()) / 2
	t.sendTime = now.Add(time.Duration(float64(t.i) * frac))
	t.intervalEndTime = now.Add(t.i)
	t.c = 0
}

// consistent records an external signal that a peer's NetState hash
// matched ours, incrementing the consistency counter.
func (t *trickle) consistent() {
	t.c++
}

// run advances the timer by one tick and returns the earliest time it next
// needs to be driven again.
func (t *trickle) run() time.Time {
	now := t.now()
	if !now.Before(t.intervalEndTime) {
		t.setI(t.i * 2)
		return t.run()
	}
	kaTime := t.lastSent.Add(t.keepalive)
	if !now.Before(kaTime) {
		t.send()
		t.lastSent = t.now()
		return t.run()
	}
	if !now.Before(t.sendTime) {
		t.sendMaybe()
	}
	return earliest(kaTime, t.sendTime, t.intervalEndTime)
}

func (t *trickle) sendMaybe() {
	if t.c < t.k {
		t.send()
		t.lastSent = t.now()
	}
	t.sendTime = t.intervalEndTime
}

func earliest(times ...time.Time) time.Time {
	e := times[0]
	for _, x := range times[1:] {
		if x.Before(e) {
			e = x
		}
	}
	return e
}
