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
	"encoding/binary"
	"time"

	"dncp/pkg/tlv"
)

// NodeID is a fixed-width opaque node identifier. It is kept as a string so
// it can be used directly as a map key; profiles fix its length (HNCP: 4
// bytes).
type NodeID string

// Node holds one participant's published state, per spec.md §3. Cached
// node-data/node-hash are lazily computed and invalidated on every TLV
// mutation.
type Node struct {
	engine *Engine
	id     NodeID

	tlvs []tlv.TLV

	seqno           uint32
	originationTime time.Time
	lastReachable   time.Time
	collided        bool

	nodeData []byte
	nodeHash []byte
}

// ID returns the node's identifier.
func (n *Node) ID() NodeID { return n.id }

// TLVs returns the node's current sorted TLV set. Callers must not mutate
// the returned slice.
func (n *Node) TLVs() []tlv.TLV { return n.tlvs }

// Seqno returns the node's current sequence number.
func (n *Node) Seqno() uint32 { return n.seqno }

// OriginationTime returns the local-clock value corresponding to this seqno.
func (n *Node) OriginationTime() time.Time { return n.originationTime }

// IsSelf reports whether n is the engine's own node.
func (n *Node) IsSelf() bool { return n.engine.ownNode == n }

// Data returns the concatenation of n's encoded TLVs (spec.md §3 node_data),
// computed lazily and cached until the next mutation.
func (n *Node) Data() []byte {
	if n.nodeData == nil {
		n.nodeData = tlv.EncodeAll(n.tlvs)
		if n.nodeData == nil {
			n.nodeData = []byte{}
		}
	}
	return n.nodeData
}

// Hash returns the profile hash of n.Data(), cached until the next mutation.
func (n *Node) Hash() []byte {
	if n.nodeHash == nil {
		n.nodeHash = n.engine.profile.Hash(n.Data())
	}
	return n.nodeHash
}

// setTLVs replaces n's TLV set, firing tlv_event for every added/removed
// element (spec.md §4.5/§9) and invalidating caches. The list is stored
// exactly as given: the originating node is responsible for canonical
// order, and re-sorting here would change node-data (and so the hash)
// out from under an accepted NodeState.
func (n *Node) setTLVs(newTLVs []tlv.TLV) {
	old := n.tlvs
	added, removed := diffTLVs(old, newTLVs)
	n.tlvs = newTLVs
	for _, t := range removed {
		n.engine.event(func(s Subscriber) { s.TLV(n, t, TLVRemoved) })
	}
	for _, t := range added {
		n.engine.event(func(s Subscriber) { s.TLV(n, t, TLVAdded) })
	}
	n.engine.markDirty(dirtyNetworkHash, dirtyGraph)
	n.nodeData = nil
	n.nodeHash = nil
}

// diffTLVs returns the TLVs present in b but not a, and in a but not b,
// treating both as sets (spec.md §3 "set-semantics").
func diffTLVs(a, b []tlv.TLV) (added, removed []tlv.TLV) {
	for _, t := range b {
		if _, ok := tlv.Contains(a, t); !ok {
			added = append(added, t)
		}
	}
	for _, t := range a {
		if _, ok := tlv.Contains(b, t); !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}

// pruneTraverse marks n (and, recursively, every node reachable from it via
// a bidirectional Neighbor pair) as reached during the current prune pass
// (spec.md §4.4 step 3).
func (n *Node) pruneTraverse() {
	if n.lastReachable.Equal(n.engine.lastPrune) {
		return
	}
	n.lastReachable = n.engine.lastPrune
	for _, neigh := range n.bidirNeighbors() {
		neigh.pruneTraverse()
	}
}

// bidirNeighbors returns the nodes reachable from n via a Neighbor TLV of
// n's that is matched by a reciprocal Neighbor TLV on the far side (spec.md
// §3 "bidirectional pairs establish reachability"). In read-only mode the
// own node trusts its own Neighbor TLVs without requiring reciprocation,
// since a read-only node never publishes anything the peer could echo back.
func (n *Node) bidirNeighbors() []*Node {
	var out []*Node
	prof := n.engine.profile
	for _, t := range n.tlvs {
		nf, ok := tlv.DecodeNeighbor(t, prof.NodeIDLength())
		if !ok {
			continue
		}
		peer, ok := n.engine.nodes[NodeID(nf.NNodeID)]
		if !ok {
			continue
		}
		if n.IsSelf() && n.engine.readOnly {
			out = append(out, peer)
			continue
		}
		for _, pt := range peer.tlvs {
			pf, ok := tlv.DecodeNeighbor(pt, prof.NodeIDLength())
			if !ok {
				continue
			}
			if nf.EpID == pf.NEpID && nf.NEpID == pf.EpID && NodeID(pf.NNodeID) == n.id {
				out = append(out, peer)
				break
			}
		}
	}
	return out
}

// getNodeState builds this node's NodeState TLV. short omits the body
// (spec.md §4.4 "one short NodeState per reachable node"); a full NodeState
// of the own node first flushes pending local changes so the body reflects
// the current publication.
func (n *Node) getNodeState(short bool) tlv.TLV {
	if !short && n.IsSelf() {
		n.engine.flushLocal()
	}
	now := n.engine.sys.Now()
	ageMs := uint32(now.Sub(n.originationTime).Milliseconds())
	var body []byte
	if !short {
		body = n.Data()
	}
	return tlv.NodeState([]byte(n.id), n.seqno, ageMs, n.Hash(), body)
}

// updateFromNodeState applies an inbound NodeState per spec.md §4.5. It
// returns wantBody=true when the caller should follow up with a
// ReqNodeState for this node's full body.
func (n *Node) updateFromNodeState(nf tlv.NodeStateFields) (wantBody bool) {
	if nf.Seqno < n.seqno {
		return false // stale
	}
	if nf.Seqno == n.seqno && bytesEqual(nf.Hash, n.Hash()) {
		return false // duplicate
	}
	if len(nf.Body) == 0 {
		return true
	}
	if !bytesEqual(n.engine.profile.Hash(nf.Body), nf.Hash) {
		n.engine.logf("node update: corrupted hash for node %x", []byte(n.id))
		return false
	}
	if n.IsSelf() {
		n.engine.logf("node update: collision on own node id %x", []byte(n.id))
		if n.collided {
			n.engine.profile.Collision(n.engine)
		} else {
			n.collided = true
			n.seqno = nf.Seqno + 1000
		}
		n.engine.markDirty(dirtyLocalTLV, dirtyLocalAlways)
		return false
	}
	decoded := tlv.DecodeAll(nf.Body)
	now := n.engine.sys.Now()
	n.seqno = nf.Seqno
	n.originationTime = now.Add(-time.Duration(nf.AgeMs) * time.Millisecond)
	n.setTLVs(decoded)
	n.engine.markDirty(dirtyNetworkHash)
	if !bytesEqual(n.Hash(), nf.Hash) {
		panic("dncp: recomputed node hash disagrees with accepted NodeState")
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// networkHashInput returns seqno(be32) ∥ node_hash, the per-node
// contribution to the network-hash aggregate (spec.md §4.4 step 5).
func (n *Node) networkHashInput() []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n.seqno)
	return append(append([]byte(nil), buf[:]...), n.Hash()...)
}
