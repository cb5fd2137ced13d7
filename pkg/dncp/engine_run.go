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

// run is the engine's single-threaded heartbeat (spec.md §4.4): age-check,
// prune-neighbors, prune-reachability, flush-local, recompute network hash,
// then drive every endpoint's Trickle timers, finally scheduling the next
// wake at the earliest time anything asked for (or in 60s otherwise). If a
// pass left dirty flags behind — a flush mutated the graph, say — the next
// pass runs immediately instead.
func (d *Engine) run() {
	d.scheduledImmediate = false
	d.scheduledTimer = nil

	now := d.sys.Now()

	d.ageCheck()
	d.pruneNeighbors()
	d.pruneReachability()
	d.flushLocal()
	d.recomputeNetworkHash()

	next := timeOrNone{}.withTime(now.Add(60 * time.Second))
	for _, ep := range d.endpointsByID {
		if !ep.Enabled {
			continue
		}
		next = next.combine(ep.run())
	}

	if d.scheduledImmediate {
		return
	}
	if d.dirty != 0 {
		d.scheduleImmediate()
		return
	}
	wake := next.t
	if !wake.After(now) {
		wake = now
	}
	// An already-pending wake at or before this one makes a new timer
	// redundant (spec.md §5: scheduled_run overridden only if earlier).
	if d.scheduledRunAt.After(now) && !d.scheduledRunAt.After(wake) {
		return
	}
	d.scheduledRunAt = wake
	d.scheduledTimer = d.sys.Schedule(wake.Sub(now), d.run)
}

// maxAge is the age, in origination-time distance, past which the seqno's
// age field would wrap its 32-bit millisecond encoding (spec.md §4.4 step
// 1: "2^32 - 2^16").
const maxAge = time.Duration(1<<32-1<<16) * time.Millisecond

// ageCheck forces a republish before the own node's age field would wrap
// its wire encoding (spec.md §4.4 step 1).
func (d *Engine) ageCheck() {
	if d.ownNode == nil {
		return
	}
	if d.sys.Now().Sub(d.ownNode.originationTime) >= maxAge {
		d.dirty.set(dirtyLocalTLV)
		d.dirty.set(dirtyLocalAlways)
	}
}

// pruneNeighbors discards neighbor metadata (and the Neighbor TLV it backs,
// when one was published) that has gone quiet for longer than the
// effective keepalive interval scaled by the profile's multiplier (spec.md
// §4.4 step 2).
func (d *Engine) pruneNeighbors() {
	now := d.sys.Now()
	for key, nb := range d.neighbors {
		threshold := time.Duration(float64(d.neighborKeepalive(nb)) * d.profile.KeepaliveMultiplier())
		if now.Sub(nb.lastContact) <= threshold {
			continue
		}
		delete(d.neighbors, key)
		d.RemoveTLV(nb.tlvIdentity())
	}
}

// neighborKeepalive resolves the effective keepalive interval for nb: the
// peer's advertised KAInterval TLV whose ep_id equals our endpoint id or is
// 0 (meaning "applies to all of the advertiser's endpoints"), falling back
// to the profile default (spec.md §4.4 step 2). The last matching TLV wins.
func (d *Engine) neighborKeepalive(nb *neighborState) time.Duration {
	interval := d.profile.KeepaliveInterval()
	peer, ok := d.nodes[NodeID(nb.nNodeID)]
	if !ok {
		return interval
	}
	for _, t := range peer.tlvs {
		ka, ok := tlv.DecodeKAInterval(t)
		if !ok {
			continue
		}
		if ka.EpID == nb.epID || ka.EpID == 0 {
			interval = time.Duration(ka.IntervalMs) * time.Millisecond
		}
	}
	return interval
}

// pruneReachability starts a fresh epoch, marks every node transitively
// reachable from the own node via bidirectional Neighbor pairs, and drops
// any node that has sat unreachable for longer than the grace interval
// (spec.md §4.4 step 3).
func (d *Engine) pruneReachability() {
	if !d.dirty.has(dirtyGraph) {
		return
	}
	d.dirty.clear(dirtyGraph)

	// The epoch must differ from the previous one even when the clock has
	// not moved, or pruneTraverse would stop at the already-marked own node.
	prune := d.sys.Now()
	if !prune.After(d.lastPrune) {
		prune = d.lastPrune.Add(time.Nanosecond)
	}
	d.lastPrune = prune
	if d.ownNode != nil {
		d.ownNode.pruneTraverse()
	}

	now := d.sys.Now()
	grace := d.profile.GraceInterval()
	ids := append([]NodeID(nil), d.nodeIDs...)
	for _, id := range ids {
		n, ok := d.nodes[id]
		if !ok || n.IsSelf() {
			continue
		}
		if n.lastReachable.Add(grace).Before(now) {
			d.removeNode(n)
		}
	}
	d.dirty.set(dirtyNetworkHash)
}

// flushLocal copies the pending local publication buffer onto the own node
// (spec.md §4.4 step 4 "flush_local"): nothing happens unless the set
// actually changed or a forced republish (local_always — age wrap,
// collision recovery) is pending; a flush always bumps the sequence number
// and restamps the origination time. The TLVs are round-tripped through
// encode/decode so the own node holds the same canonical wire form a peer
// would decode.
func (d *Engine) flushLocal() {
	if !d.dirty.has(dirtyLocalTLV) {
		return
	}
	d.dirty.clear(dirtyLocalTLV)

	own := d.ownNode
	sorted := tlv.Sort(d.localTLVs)
	if sameTLVs(sorted, own.tlvs) && !d.dirty.has(dirtyLocalAlways) {
		return
	}
	d.dirty.clear(dirtyLocalAlways)

	d.event(func(s Subscriber) { s.Republish() })
	own.setTLVs(tlv.DecodeAll(tlv.EncodeAll(sorted)))
	own.seqno++
	own.originationTime = d.sys.Now()
	d.dirty.set(dirtyNetworkHash)
}

func sameTLVs(a, b []tlv.TLV) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// recomputeNetworkHash folds every valid node's (seqno, node_hash) pair, in
// node-id order, through the profile hash function (spec.md §4.4 step 5).
// A change flips the consistency flag and notifies subscribers.
func (d *Engine) recomputeNetworkHash() {
	if !d.dirty.has(dirtyNetworkHash) {
		return
	}
	d.dirty.clear(dirtyNetworkHash)

	var buf []byte
	for _, n := range d.ValidSortedNodes() {
		buf = append(buf, n.networkHashInput()...)
	}
	newHash := d.profile.Hash(buf)
	changed := !bytesEqual(newHash, d.networkHash)
	d.networkHash = newHash
	if changed {
		for _, ep := range d.endpointsByID {
			ep.resetTrickles()
		}
	}
	d.evaluateConsistency()
}

// GetNetworkHash returns the current network-hash aggregate, recomputing it
// first if dirty.
func (d *Engine) GetNetworkHash() []byte {
	d.recomputeNetworkHash()
	return d.networkHash
}

// evaluateConsistency recomputes is_consistent (spec.md §4.4 "Consistency
// signal": last_seen_network_hash == network_hash) and notifies subscribers
// on transition.
func (d *Engine) evaluateConsistency() {
	consistent := bytesEqual(d.lastSeenNetworkHash, d.networkHash)
	if d.isConsistentVal != nil && *d.isConsistentVal == consistent {
		return
	}
	v := consistent
	d.isConsistentVal = &v
	d.event(func(s Subscriber) { s.NetworkConsistent(consistent) })
}

// IsConsistent reports whether the last NetState we've seen from the
// network matches our own network hash.
func (d *Engine) IsConsistent() bool {
	return d.isConsistentVal != nil && *d.isConsistentVal
}
