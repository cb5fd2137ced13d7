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

package tlv

import "encoding/binary"

// Registered HNCP base TLV types (spec.md §4.1).
const (
	TypeReqNetState  uint16 = 1
	TypeReqNodeState uint16 = 2
	TypeNodeEP       uint16 = 3
	TypeNetState     uint16 = 4
	TypeNodeState    uint16 = 5
	TypeNeighbor     uint16 = 8
	TypeKAInterval   uint16 = 9
)

// ReqNetState requests the current network state (type 1, no body).
func ReqNetState() TLV { return New(TypeReqNetState, nil) }

// ReqNodeState requests a specific node's full state (type 2).
func ReqNodeState(nodeID []byte) TLV {
	return New(TypeReqNodeState, nodeID)
}

// ReqNodeStateID extracts the requested node id from a TypeReqNodeState TLV.
func ReqNodeStateID(t TLV) []byte { return t.Body }

// NodeEP announces a node's identity on a given local endpoint (type 3):
// `node_id:len epID:u32`.
func NodeEP(nodeID []byte, epID uint32) TLV {
	body := make([]byte, len(nodeID)+4)
	copy(body, nodeID)
	binary.BigEndian.PutUint32(body[len(nodeID):], epID)
	return New(TypeNodeEP, body)
}

// DecodeNodeEP parses a NodeEP body given the profile's node-id length.
func DecodeNodeEP(t TLV, nodeIDLen int) (nodeID []byte, epID uint32, ok bool) {
	if t.Type != TypeNodeEP || len(t.Body) < nodeIDLen+4 {
		return nil, 0, false
	}
	nodeID = t.Body[:nodeIDLen]
	epID = binary.BigEndian.Uint32(t.Body[nodeIDLen : nodeIDLen+4])
	return nodeID, epID, true
}

// NetState carries the current network-hash aggregate (type 4).
func NetState(hash []byte) TLV { return New(TypeNetState, hash) }

// NetStateHash extracts the hash from a TypeNetState TLV.
func NetStateHash(t TLV) []byte { return t.Body }

// NodeState (type 5): `node_id seqno:u32 age:u32 hash` followed by an
// opaque body, which when non-empty is itself a nested TLV sequence (the
// node's published TLVs). Prefix and body together are what spec.md §4.1
// calls a container TLV whose outer length spans prefix+nested bytes.
func NodeState(nodeID []byte, seqno, age uint32, hash, body []byte) TLV {
	v := make([]byte, 0, len(nodeID)+8+len(hash)+len(body))
	v = append(v, nodeID...)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], seqno)
	v = append(v, tmp[:]...)
	binary.BigEndian.PutUint32(tmp[:], age)
	v = append(v, tmp[:]...)
	v = append(v, hash...)
	v = append(v, body...)
	return New(TypeNodeState, v)
}

// NodeStateFields is the decoded form of a TypeNodeState TLV.
type NodeStateFields struct {
	NodeID []byte
	Seqno  uint32
	AgeMs  uint32
	Hash   []byte
	Body   []byte
}

// DecodeNodeState parses a NodeState body given the profile's node-id and
// hash lengths. A malformed (too-short) body is reported via ok=false;
// callers must not abort the surrounding stream on a false result
// (spec.md §4.1, "Malformed nested bodies leave the container's tlvs
// empty without aborting the outer stream").
func DecodeNodeState(t TLV, nodeIDLen, hashLen int) (NodeStateFields, bool) {
	prefix := nodeIDLen + 8 + hashLen
	if t.Type != TypeNodeState || len(t.Body) < prefix {
		return NodeStateFields{}, false
	}
	nf := NodeStateFields{
		NodeID: t.Body[:nodeIDLen],
		Seqno:  binary.BigEndian.Uint32(t.Body[nodeIDLen : nodeIDLen+4]),
		AgeMs:  binary.BigEndian.Uint32(t.Body[nodeIDLen+4 : nodeIDLen+8]),
		Hash:   t.Body[nodeIDLen+8 : prefix],
		Body:   t.Body[prefix:],
	}
	return nf, true
}

// Neighbor asserts "I have heard (nNodeID, nEpID) on my own epID" (type 8):
// `n_node_id n_ep_id:u32 ep_id:u32`.
func Neighbor(nNodeID []byte, nEpID, epID uint32) TLV {
	body := make([]byte, len(nNodeID)+8)
	copy(body, nNodeID)
	binary.BigEndian.PutUint32(body[len(nNodeID):], nEpID)
	binary.BigEndian.PutUint32(body[len(nNodeID)+4:], epID)
	return New(TypeNeighbor, body)
}

// NeighborFields is the decoded form of a TypeNeighbor TLV.
type NeighborFields struct {
	NNodeID []byte
	NEpID   uint32
	EpID    uint32
}

// DecodeNeighbor parses a Neighbor body given the profile's node-id length.
// A TLV of any other type reports ok=false, so callers may probe a mixed
// TLV list without first switching on Type.
func DecodeNeighbor(t TLV, nodeIDLen int) (NeighborFields, bool) {
	if t.Type != TypeNeighbor || len(t.Body) < nodeIDLen+8 {
		return NeighborFields{}, false
	}
	return NeighborFields{
		NNodeID: t.Body[:nodeIDLen],
		NEpID:   binary.BigEndian.Uint32(t.Body[nodeIDLen : nodeIDLen+4]),
		EpID:    binary.BigEndian.Uint32(t.Body[nodeIDLen+4 : nodeIDLen+8]),
	}, true
}

// KAInterval advertises a non-default keepalive interval for an endpoint
// (type 9): `ep_id:u32 interval_ms:u32`. ep_id 0 means "applies to all of
// the advertiser's endpoints" (spec.md §4.4 prune-neighbors rule).
func KAInterval(epID, intervalMs uint32) TLV {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body[0:4], epID)
	binary.BigEndian.PutUint32(body[4:8], intervalMs)
	return New(TypeKAInterval, body)
}

// KAIntervalFields is the decoded form of a TypeKAInterval TLV.
type KAIntervalFields struct {
	EpID       uint32
	IntervalMs uint32
}

// DecodeKAInterval parses a KAInterval body.
func DecodeKAInterval(t TLV) (KAIntervalFields, bool) {
	if t.Type != TypeKAInterval || len(t.Body) < 8 {
		return KAIntervalFields{}, false
	}
	return KAIntervalFields{
		EpID:       binary.BigEndian.Uint32(t.Body[0:4]),
		IntervalMs: binary.BigEndian.Uint32(t.Body[4:8]),
	}, true
}
