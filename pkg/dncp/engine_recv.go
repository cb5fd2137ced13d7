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

import "dncp/pkg/tlv"

// Received processes one inbound frame (spec.md §4.4 "ext_received"). dst
// being nil signals the frame arrived by multicast; a non-nil dst is the
// local address the peer used to reach us and becomes the source address
// for any unicast reply.
//
// A single net-state request per frame is aggregated across the TLVs that
// want one (an unknown peer heard over multicast, an inconsistent NetState)
// and sent at the end, rate-limited to one per TRICKLE_IMIN so a
// persistently inconsistent link can't make us spam requests on every
// received frame.
func (d *Engine) Received(ep *Endpoint, src, dst Peer, l []tlv.TLV) {
	mcast := dst == nil
	now := d.sys.Now()
	var nb *neighborState
	wantRNS := false

	for _, t := range l {
		switch t.Type {
		case tlv.TypeNodeEP:
			nodeID, epID, ok := tlv.DecodeNodeEP(t, d.profile.NodeIDLength())
			if !ok {
				d.logf("received: malformed NodeEP")
				continue
			}
			nb = d.heard(ep, src, dst, nodeID, epID)
			if mcast && nb == nil {
				// Multicast alone never earns a Neighbor TLV (spec.md §9
				// open question); probe for net state instead and commit
				// once the peer answers by unicast.
				wantRNS = true
			}

		case tlv.TypeReqNetState:
			ep.SendNetState(dst, src, false)

		case tlv.TypeReqNodeState:
			id := tlv.ReqNodeStateID(t)
			n, ok := d.nodes[NodeID(id)]
			if ok && n.lastReachable.Equal(d.lastPrune) {
				ep.send(dst, src, []tlv.TLV{n.getNodeState(false)})
			} else {
				d.logf("received: ignoring ReqNodeState for %x, not up to date", id)
			}

		case tlv.TypeNetState:
			d.lastSeenNetworkHash = append([]byte(nil), tlv.NetStateHash(t)...)
			consistent := bytesEqual(d.lastSeenNetworkHash, d.GetNetworkHash())
			d.evaluateConsistency()
			if !consistent {
				wantRNS = true
				continue
			}
			if ep.trickle != nil {
				ep.trickle.consistent()
			}
			if nb != nil {
				if nb.trickle != nil {
					nb.trickle.consistent()
				}
				nb.lastContact = now
			}

		case tlv.TypeNodeState:
			nf, ok := tlv.DecodeNodeState(t, d.profile.NodeIDLength(), d.profile.HashLength())
			if !ok {
				d.logf("received: malformed NodeState")
				continue
			}
			if d.findOrCreateNode(NodeID(nf.NodeID)).updateFromNodeState(nf) {
				ep.send(dst, src, []tlv.TLV{tlv.ReqNodeState(nf.NodeID)})
			}

		default:
			d.logf("received: unknown top-level TLV type %d", t.Type)
		}
	}

	if !mcast && nb != nil {
		nb.lastContact = now
	}
	if wantRNS && now.After(d.lastRNS.Add(d.profile.TrickleIMin())) {
		d.lastRNS = now
		ep.SendNetState(dst, src, true)
	}
}

// heard records a neighbor relationship learned from a NodeEP TLV. An
// already-known neighbor is returned as-is; an unknown one is committed
// only when heard by unicast (dst non-nil) — Received's end-of-frame pass
// refreshes last_contact for unicast frames. A NodeEP echoing our own
// node-id back at us is never a neighbor relationship.
func (d *Engine) heard(ep *Endpoint, src, dst Peer, remoteNodeID []byte, remoteEpID uint32) *neighborState {
	if d.ownNode != nil && NodeID(remoteNodeID) == d.ownNode.id {
		return nil
	}
	identity := tlv.Neighbor(remoteNodeID, remoteEpID, ep.ID)
	key := string(identity.Bytes())

	if nb, ok := d.neighbors[key]; ok {
		return nb
	}
	if dst == nil {
		return nil
	}
	nb := &neighborState{
		epID:        ep.ID,
		nNodeID:     append([]byte(nil), remoteNodeID...),
		nEpID:       remoteEpID,
		localAddr:   dst,
		peerAddr:    src,
		lastContact: d.sys.Now(),
	}
	d.neighbors[key] = nb
	if ep.perPeerKA {
		nb.trickle = newTrickle(d.profile.TrickleIMin(), d.profile.TrickleIMax(), d.profile.TrickleK(),
			d.profile.KeepaliveInterval(), d.sys.Now, func() { ep.SendNetState(nb.localAddr, nb.peerAddr, false) })
	}
	// A read-only engine still publishes its own Neighbor TLVs — that is
	// internal protocol bookkeeping, not application content, and AddTLV
	// permits Neighbor TLVs regardless of read-only mode. What read-only
	// suppresses is everything else (spec.md §4.2).
	d.AddTLV(nb.tlvIdentity())
	return nb
}
