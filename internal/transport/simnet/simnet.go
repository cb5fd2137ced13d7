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

// Package simnet is an in-process SystemInterface: a virtual clock plus
// direct, same-process link delivery, used by package tests and by
// tools/hncp-sim instead of a real socket. There is exactly one clock per
// Network; every Node sharing that Network sees the same simulated time.
package simnet

import (
	"container/heap"
	"time"

	"dncp/pkg/dncp"
	"dncp/pkg/tlv"
)

// Network is a shared virtual clock and link fabric for a set of Nodes. Its
// zero value is ready to use, with its clock at the zero time.Time;
// NewNetwork starts the clock at the Unix epoch instead.
type Network struct {
	now    time.Time
	timers timerHeap
	nextID uint64

	links map[*Node]map[*Node]bool // node -> set of nodes it can reach
}

// NewNetwork returns a Network whose clock starts at an arbitrary epoch.
func NewNetwork() *Network {
	return &Network{
		now:   time.Unix(0, 0),
		links: map[*Node]map[*Node]bool{},
	}
}

// Connect makes a and b mutually reachable (multicast and unicast frames
// sent by one are delivered to the other).
func (nw *Network) Connect(a, b *Node) {
	nw.addLink(a, b)
	nw.addLink(b, a)
}

// Disconnect removes reachability both ways (used to simulate a partition).
func (nw *Network) Disconnect(a, b *Node) {
	if nw.links[a] != nil {
		delete(nw.links[a], b)
	}
	if nw.links[b] != nil {
		delete(nw.links[b], a)
	}
}

func (nw *Network) addLink(a, b *Node) {
	if nw.links == nil {
		nw.links = map[*Node]map[*Node]bool{}
	}
	if nw.links[a] == nil {
		nw.links[a] = map[*Node]bool{}
	}
	nw.links[a][b] = true
}

// Now returns the network's current simulated time.
func (nw *Network) Now() time.Time { return nw.now }

// Advance runs the simulation forward by d, firing every timer due to
// expire along the way in expiry order.
func (nw *Network) Advance(d time.Duration) {
	end := nw.now.Add(d)
	for nw.timers.Len() > 0 && !nw.timers[0].at.After(end) {
		it := heap.Pop(&nw.timers).(*timerItem)
		if it.cancelled {
			continue
		}
		nw.now = it.at
		it.cb()
	}
	nw.now = end
}

// RunUntil repeatedly advances by step until cond returns true or
// maxDuration of simulated time has elapsed, returning whether cond was
// satisfied (spec.md §5 "max_duration bound").
func RunUntil(nw *Network, step, maxDuration time.Duration, cond func() bool) bool {
	elapsed := time.Duration(0)
	for elapsed < maxDuration {
		if cond() {
			return true
		}
		nw.Advance(step)
		elapsed += step
	}
	return cond()
}

// timerItem is one scheduled callback, ordered by expiry in a min-heap.
type timerItem struct {
	at        time.Time
	seq       uint64
	cb        func()
	cancelled bool
}

type timerHeap []*timerItem

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerItem)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// handle implements dncp.TimerHandle over a timerItem living in a Network's
// heap; Cancel just flags it so Advance skips it when popped.
type handle struct{ it *timerItem }

func (h handle) Cancel() { h.it.cancelled = true }

// Node is one simulated participant: it implements dncp.System against a
// shared Network, and records every frame it has been asked to deliver for
// test assertions.
type Node struct {
	nw   *Network
	recv func(ep *dncp.Endpoint, src, dst dncp.Peer, l []tlv.TLV)

	Sent []SentFrame

	// eps maps endpoint names to the attached engine's own endpoints, learned
	// from its Sends, so inbound frames are handed to the receiver's endpoint.
	eps map[string]*dncp.Endpoint
}

// SentFrame records one outbound frame for test inspection.
type SentFrame struct {
	Endpoint *dncp.Endpoint
	Src, Dst dncp.Peer
	TLVs     []tlv.TLV
}

// NewNode creates a Node on nw. recv is the engine's Received method, wired
// in after both the Engine and Node exist (the two are mutually
// referential: the Engine needs a System at construction, the Node needs
// the Engine's Received to deliver inbound frames).
func NewNode(nw *Network, recv func(ep *dncp.Endpoint, src, dst dncp.Peer, l []tlv.TLV)) *Node {
	return &Node{nw: nw, recv: recv}
}

// SetReceiver wires the engine's Received method in after construction,
// for the common case where the Engine is built from this Node as its
// System and so cannot exist yet when NewNode is called.
func (n *Node) SetReceiver(recv func(ep *dncp.Endpoint, src, dst dncp.Peer, l []tlv.TLV)) {
	n.recv = recv
}

func (n *Node) Now() time.Time { return n.nw.now }

func (n *Node) Schedule(dt time.Duration, cb func()) dncp.TimerHandle {
	n.nw.nextID++
	it := &timerItem{at: n.nw.now.Add(dt), seq: n.nw.nextID, cb: cb}
	heap.Push(&n.nw.timers, it)
	return handle{it: it}
}

// Send delivers l to every peer Node reachable from n (dst == nil, i.e.
// multicast) or, for a unicast dst, to the single Node the token names.
// Peer tokens in this transport are simply *Node pointers.
func (n *Node) Send(ep *dncp.Endpoint, src, dst dncp.Peer, l []tlv.TLV) {
	n.Sent = append(n.Sent, SentFrame{Endpoint: ep, Src: src, Dst: dst, TLVs: l})
	if n.eps == nil {
		n.eps = map[string]*dncp.Endpoint{}
	}
	n.eps[ep.Name] = ep

	cp := make([]tlv.TLV, len(l))
	copy(cp, l)

	if dst != nil {
		peer := dst.(*Node)
		peer.deliver(ep, n, peer, cp)
		return
	}
	for peer := range n.nw.links[n] {
		peer.deliver(ep, n, nil, cp)
	}
}

// deliver passes l to the receiving engine on its own endpoint of the same
// name as the sender's ep; a frame arriving before that engine has sent on
// such an endpoint is dropped.
func (n *Node) deliver(ep *dncp.Endpoint, src *Node, dst dncp.Peer, l []tlv.TLV) {
	local, ok := n.eps[ep.Name]
	if n.recv != nil && ok {
		n.recv(local, src, dst, l)
	}
}

// AsPeer returns the Peer token a test (or tools/hncp-sim) should pass as a
// unicast destination to address n — in this transport, a Node is its own
// token.
func (n *Node) AsPeer() dncp.Peer { return n }
