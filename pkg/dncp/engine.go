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

// Package dncp implements the generic Distributed Node Consensus Protocol
// flooding engine: the TLV-based node store, the Trickle-driven run loop,
// and the inbound message handling that a concrete profile (e.g. HNCP)
// specializes with a hash function, node-id width and timing constants.
//
// The engine is single-threaded and cooperatively scheduled (spec.md §5):
// every public method must be called from the same goroutine, normally from
// inside a callback delivered by the configured System.
package dncp

import (
	"io"
	"log"
	"math/rand"
	"time"

	"dncp/pkg/tlv"
)

type dirtyFlags uint8

const (
	dirtyGraph dirtyFlags = 1 << iota
	dirtyNetworkHash
	dirtyLocalTLV
	dirtyLocalAlways
)

func (d dirtyFlags) has(f dirtyFlags) bool { return d&f != 0 }
func (d *dirtyFlags) set(f dirtyFlags)     { *d |= f }
func (d *dirtyFlags) clear(f dirtyFlags)   { *d &^= f }

// neighborState is the mutable, non-wire metadata attached to a published
// Neighbor TLV (spec.md §3: "last_contact is local mutable metadata not
// included in the wire identity").
type neighborState struct {
	epID    uint32
	nNodeID []byte
	nEpID   uint32

	localAddr Peer // our address as observed by the peer (the `dst` at heard time)
	peerAddr  Peer // the peer's address (the `src` at heard time)

	lastContact time.Time
	trickle     *trickle
}

// tlvIdentity rebuilds the wire-level Neighbor TLV this neighbor publishes,
// for re-insertion or removal from the local publication buffer.
func (nb *neighborState) tlvIdentity() tlv.TLV {
	return tlv.Neighbor(nb.nNodeID, nb.nEpID, nb.epID)
}

// Engine is a running DNCP instance: one node store, one set of endpoints,
// one local publication buffer, driven by a System and specialized by a
// Profile (spec.md §4.4).
type Engine struct {
	sys     System
	profile Profile
	logger  *log.Logger

	readOnly bool

	ownNode *Node
	nodes   map[NodeID]*Node
	nodeIDs []NodeID // kept sorted, mirrors the Python bisect-maintained list

	endpointsByName map[string]*Endpoint
	endpointsByID   map[uint32]*Endpoint
	nextEndpointID  uint32

	neighbors map[string]*neighborState // keyed by the Neighbor TLV's encoded identity

	localTLVs []tlv.TLV // the engine's own publication buffer, pre-flush

	subscribers []Subscriber

	dirty dirtyFlags

	scheduledImmediate bool
	scheduledRunAt     time.Time
	scheduledTimer     TimerHandle

	lastPrune time.Time
	lastRNS   time.Time // last rate-limited net-state request

	networkHash         []byte
	lastSeenNetworkHash []byte
	isConsistentVal     *bool
}

// New constructs an Engine bound to sys and specialized by profile. If
// nodeID is empty, a fresh random one of the profile's NodeIDLength not
// already present (there being none, any random value) is minted and
// installed via SetNodeID.
func New(sys System, profile Profile, nodeID NodeID, readOnly bool) *Engine {
	d := &Engine{
		sys:             sys,
		profile:         profile,
		logger:          log.New(io.Discard, "", 0),
		readOnly:        readOnly,
		nodes:           map[NodeID]*Node{},
		endpointsByName: map[string]*Endpoint{},
		endpointsByID:   map[uint32]*Endpoint{},
		neighbors:       map[string]*neighborState{},
		nextEndpointID:  1,
	}
	d.dirty.set(dirtyNetworkHash)
	if nodeID == "" {
		nodeID = randomNodeID(profile.NodeIDLength(), func(id NodeID) bool {
			_, ok := d.nodes[id]
			return ok
		})
	}
	d.SetNodeID(nodeID)
	d.scheduleImmediate()
	return d
}

func randomNodeID(length int, taken func(NodeID) bool) NodeID {
	for {
		b := make([]byte, length)
		for i := range b {
			b[i] = byte(rand.Intn(256))
		}
		id := NodeID(b)
		if !taken(id) {
			return id
		}
	}
}

// SetLogger installs a logger for protocol trace (decode errors, collision
// recovery, etc.); the default discards everything.
func (d *Engine) SetLogger(l *log.Logger) { d.logger = l }

func (d *Engine) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

// OwnNode returns the engine's own node.
func (d *Engine) OwnNode() *Node { return d.ownNode }

// HasNode reports whether id is currently present in the node store.
func (d *Engine) HasNode(id NodeID) bool {
	_, ok := d.nodes[id]
	return ok
}

// ReadOnly reports whether the engine is in read-only (observer) mode.
func (d *Engine) ReadOnly() bool { return d.readOnly }

// AddSubscriber registers s to receive future events.
func (d *Engine) AddSubscriber(s Subscriber) {
	d.subscribers = append(d.subscribers, s)
}

func (d *Engine) event(f func(Subscriber)) {
	for _, s := range d.subscribers {
		f(s)
	}
}

// FindEndpointByID returns the endpoint with the given id, if any.
func (d *Engine) FindEndpointByID(id uint32) (*Endpoint, bool) {
	ep, ok := d.endpointsByID[id]
	return ep, ok
}

// FindEndpointByName returns the endpoint with the given name, if any.
func (d *Engine) FindEndpointByName(name string) (*Endpoint, bool) {
	ep, ok := d.endpointsByName[name]
	return ep, ok
}

// CreateEndpoint allocates a new endpoint bound to name, assigning it the
// next free endpoint-id (spec.md §3: "assigned from a monotonically
// increasing counter starting at 1").
func (d *Engine) CreateEndpoint(name string, opts EndpointOptions) *Endpoint {
	if _, exists := d.endpointsByName[name]; exists {
		panic("dncp: endpoint already exists: " + name)
	}
	perEP := d.profile.PerEndpointKA()
	if opts.PerEndpointKA != nil {
		perEP = *opts.PerEndpointKA
	}
	perPeer := d.profile.PerPeerKA()
	if opts.PerPeerKA != nil {
		perPeer = *opts.PerPeerKA
	}
	ep := &Endpoint{
		engine:        d,
		Name:          name,
		ID:            d.nextEndpointID,
		perEndpointKA: perEP,
		perPeerKA:     perPeer,
	}
	d.nextEndpointID++
	if ep.perEndpointKA {
		ep.trickle = newTrickle(d.profile.TrickleIMin(), d.profile.TrickleIMax(), d.profile.TrickleK(),
			d.profile.KeepaliveInterval(), d.sys.Now, func() { ep.SendNetState(nil, nil, false) })
	}
	d.endpointsByName[name] = ep
	d.endpointsByID[ep.ID] = ep
	return ep
}

// SetEndpointEnabled toggles ep's enabled flag (spec.md §4.4 "ext_ready").
func (d *Engine) SetEndpointEnabled(ep *Endpoint, enabled bool) {
	ep.setEnabled(enabled)
}

// EnabledEndpoints returns every currently-enabled endpoint.
func (d *Engine) EnabledEndpoints() []*Endpoint {
	var out []*Endpoint
	for _, ep := range d.endpointsByID {
		if ep.Enabled {
			out = append(out, ep)
		}
	}
	return out
}

// findOrCreateNode returns the node for id, creating it with a
// just-before-last-prune lastReachable if it didn't exist (spec.md §3
// Lifecycle "(b) a NodeState for an unknown id arrives"), bounded below so
// a node learned long after the last prune still gets at least half the
// grace interval to prove itself reachable.
func (d *Engine) findOrCreateNode(id NodeID) *Node {
	if n, ok := d.nodes[id]; ok {
		return n
	}
	base := d.sys.Now().Add(-time.Second)
	t := base
	if lp := d.lastPrune.Add(-time.Second); lp.Before(t) {
		t = lp
	}
	if lb := base.Add(-d.profile.GraceInterval() / 2); t.Before(lb) {
		t = lb
	}
	n := &Node{engine: d, id: id, lastReachable: t}
	return d.addNode(n, false)
}

// SetNodeID replaces the engine's own node-id, discarding any previous own
// node (spec.md §4.4 "set_node_id").
func (d *Engine) SetNodeID(id NodeID) {
	if d.ownNode != nil {
		d.removeNode(d.ownNode)
	}
	d.markDirty(dirtyLocalTLV)
	n := &Node{engine: d, id: id}
	d.ownNode = d.addNode(n, true)
}

func (d *Engine) addNode(n *Node, own bool) *Node {
	if own {
		d.ownNode = n
	}
	d.nodes[n.id] = n
	d.event(func(s Subscriber) { s.Node(n, NodeAdded) })
	d.markDirty(dirtyGraph)
	insertSortedNodeID(&d.nodeIDs, n.id)
	return n
}

func (d *Engine) removeNode(n *Node) {
	delete(d.nodes, n.id)
	d.event(func(s Subscriber) { s.Node(n, NodeRemoved) })
	d.markDirty(dirtyGraph)
	removeSortedNodeID(&d.nodeIDs, n.id)
}

func insertSortedNodeID(ids *[]NodeID, id NodeID) {
	l := *ids
	lo, hi := 0, len(l)
	for lo < hi {
		mid := (lo + hi) / 2
		if l[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	l = append(l, "")
	copy(l[lo+1:], l[lo:])
	l[lo] = id
	*ids = l
}

func removeSortedNodeID(ids *[]NodeID, id NodeID) {
	l := *ids
	for i, x := range l {
		if x == id {
			*ids = append(l[:i], l[i+1:]...)
			return
		}
	}
}

// AddTLV adds t to the local publication buffer, scheduling an immediate
// run (spec.md §4.4 "add_tlv"). Only Neighbor TLVs may be added while
// read-only.
func (d *Engine) AddTLV(t tlv.TLV) tlv.TLV {
	if existing, ok := tlv.Contains(d.localTLVs, t); ok {
		return existing
	}
	if d.readOnly && t.Type != tlv.TypeNeighbor {
		panic("dncp: read-only engine cannot publish non-Neighbor TLVs")
	}
	d.localTLVs, _ = tlv.Insert(d.localTLVs, t)
	d.event(func(s Subscriber) { s.LocalTLV(t, TLVAdded) })
	d.markDirty(dirtyLocalTLV)
	return t
}

// RemoveTLV removes t from the local publication buffer.
func (d *Engine) RemoveTLV(t tlv.TLV) {
	d.localTLVs = tlv.Remove(d.localTLVs, t)
	d.event(func(s Subscriber) { s.LocalTLV(t, TLVRemoved) })
	d.markDirty(dirtyLocalTLV)
}

// LocalTLVs returns the engine's pending local publication buffer.
func (d *Engine) LocalTLVs() []tlv.TLV { return d.localTLVs }

// markDirty flags the given aspects dirty and, unless a run is already
// scheduled at time zero, schedules one (spec.md §5 "scheduled_immediate").
func (d *Engine) markDirty(flags ...dirtyFlags) {
	for _, f := range flags {
		d.dirty.set(f)
	}
	d.scheduleImmediate()
}

func (d *Engine) scheduleImmediate() {
	if d.scheduledImmediate {
		return
	}
	d.scheduledImmediate = true
	if d.scheduledTimer != nil {
		d.scheduledTimer.Cancel()
		d.scheduledTimer = nil
		d.scheduledRunAt = time.Time{}
	}
	d.sys.Schedule(0, d.run)
}

// ValidSortedNodes yields, in node-id order, the nodes that have at least
// one TLV and were reached during the most recent prune (spec.md §4.2),
// suppressing a read-only own node that publishes only Neighbor TLVs.
func (d *Engine) ValidSortedNodes() []*Node {
	var out []*Node
	for _, id := range d.nodeIDs {
		n := d.nodes[id]
		if n.IsSelf() && d.readOnly && onlyNeighborTLVs(n.tlvs) {
			continue
		}
		if len(n.tlvs) > 0 && n.lastReachable.Equal(d.lastPrune) {
			out = append(out, n)
		}
	}
	return out
}

func onlyNeighborTLVs(l []tlv.TLV) bool {
	for _, t := range l {
		if t.Type != tlv.TypeNeighbor {
			return false
		}
	}
	return true
}

func (d *Engine) neighborsOnEndpoint(epID uint32) []*neighborState {
	var out []*neighborState
	for _, nb := range d.neighbors {
		if nb.epID == epID {
			out = append(out, nb)
		}
	}
	return out
}
