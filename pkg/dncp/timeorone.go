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

// timeOrNone is an optional time.Time: the earliest-wake accumulator used
// while folding over a (possibly empty) collection of Trickle timers, since
// an endpoint with no Trickle timers at all (per-endpoint keepalive off,
// no neighbors yet) contributes nothing to the engine's next wake.
type timeOrNone struct {
	t   time.Time
	has bool
}

// combine folds t into the accumulator, keeping the earlier of the two.
func (x timeOrNone) combine(t timeOrNone) timeOrNone {
	if !t.has {
		return x
	}
	if !x.has || t.t.Before(x.t) {
		return t
	}
	return x
}

// withTime folds a bare time.Time into the accumulator.
func (x timeOrNone) withTime(t time.Time) timeOrNone {
	return x.combine(timeOrNone{t: t, has: true})
}
