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

package udp6

import (
	"testing"
	"time"
)

// TestScheduleFiresInOrder exercises the timer heap in isolation, without
// opening a real socket: Schedule/fireDue are the same logic Run's select
// loop drives.
func TestScheduleFiresInOrder(t *testing.T) {
	tr := &Transport{}
	var fired []string

	past := time.Now().Add(-time.Second)
	tr.Schedule(0, func() { fired = append(fired, "c") })
	tr.Schedule(0, func() { fired = append(fired, "a") })
	tr.Schedule(0, func() { fired = append(fired, "b") })

	// Backdate every pending timer so fireDue fires all three
	// deterministically instead of sleeping in the test.
	for _, it := range tr.timers {
		it.at = past
	}

	tr.fireDue()
	if got := len(fired); got != 3 {
		t.Fatalf("expected 3 timers to fire, got %d: %v", got, fired)
	}
	// Equal expiry times fire in scheduling order.
	if fired[0] != "c" || fired[1] != "a" || fired[2] != "b" {
		t.Fatalf("expected timers to fire in scheduling order [c a b], got %v", fired)
	}
	if tr.timers.Len() != 0 {
		t.Fatalf("expected all timers drained, %d remain", tr.timers.Len())
	}
}

// TestScheduleCancel verifies a cancelled timer never runs.
func TestScheduleCancel(t *testing.T) {
	tr := &Transport{}
	ran := false
	h := tr.Schedule(time.Millisecond, func() { ran = true })
	h.Cancel()

	for _, it := range tr.timers {
		it.at = time.Now().Add(-time.Second)
	}
	tr.fireDue()
	if ran {
		t.Fatalf("cancelled timer fired")
	}
}

func TestZeroConfigCarriesNoDefaults(t *testing.T) {
	cfg := Config{}
	if cfg.Group != "" || cfg.Port != 0 {
		t.Fatalf("zero-value Config must carry no defaults before New fills them in")
	}
}
