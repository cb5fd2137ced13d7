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
	"testing"
	"time"
)

// fakeClock is a manually-advanced clock, avoiding a dependency on
// simnet's heap-driven scheduler for these narrowly-scoped Trickle tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestTrickleDoublesIntervalPastEnd(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	sends := 0
	tr := newTrickle(time.Second, 100*time.Second, 1, time.Hour, clk.now, func() { sends++ })
	tr.rand = func() float64 { return 0 } // deterministic: send_time = now + i/2
	tr.setI(0)                            // re-roll send_time with the fixed rand

	i0 := tr.i
	clk.advance(2 * time.Second) // past interval_end_time (i=1s)
	tr.run()
	if tr.i <= i0 {
		t.Fatalf("expected interval to double past i0=%v, got %v", i0, tr.i)
	}
}

func TestTrickleSuppressesWhenConsistentAboveK(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	sends := 0
	tr := newTrickle(time.Second, 100*time.Second, 1, time.Hour, clk.now, func() { sends++ })
	tr.rand = func() float64 { return 0 }
	tr.setI(0)

	tr.consistent() // c=1, now >= k=1, so next sendMaybe should suppress
	clk.advance(time.Second / 2)
	tr.run()
	if sends != 0 {
		t.Fatalf("expected suppressed send with c>=k, got %d sends", sends)
	}
}

func TestTrickleSendsWhenBelowK(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	sends := 0
	tr := newTrickle(time.Second, 100*time.Second, 1, time.Hour, clk.now, func() { sends++ })
	tr.rand = func() float64 { return 0 }
	tr.setI(0)

	clk.advance(time.Second / 2)
	tr.run()
	if sends != 1 {
		t.Fatalf("expected exactly one send below K, got %d", sends)
	}
}

func TestTrickleForcesKeepalive(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	sends := 0
	tr := newTrickle(time.Second, 2*time.Second, 1, 500*time.Millisecond, clk.now, func() { sends++ })
	tr.rand = func() float64 { return 1 } // push send_time to the far end of the interval
	tr.setI(0)

	clk.advance(600 * time.Millisecond) // past keepalive, not yet past send_time
	tr.run()
	if sends == 0 {
		t.Fatalf("expected a forced keepalive send")
	}
}

func TestSetIClampsToBounds(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	tr := newTrickle(time.Second, 10*time.Second, 1, time.Hour, clk.now, func() {})
	tr.setI(time.Millisecond)
	if tr.i != time.Second {
		t.Fatalf("expected clamp to imin=1s, got %v", tr.i)
	}
	tr.setI(time.Minute)
	if tr.i != 10*time.Second {
		t.Fatalf("expected clamp to imax=10s, got %v", tr.i)
	}
}
