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

// EndpointOptions configures Engine.CreateEndpoint, following the same
// struct-of-defaults shape used throughout this codebase for optional
// construction parameters.
type EndpointOptions struct {
	// PerEndpointKA and PerPeerKA override the profile defaults for this
	// one endpoint when non-nil.
	PerEndpointKA *bool
	PerPeerKA     *bool
}

// Endpoint is a per-link binding (spec.md §3): a name, an endpoint-id
// assigned from the engine's monotonically increasing counter, and the
// Trickle state(s) that govern when this link floods.
type Endpoint struct {
	engine *Engine

	Name    string
	ID      uint32
	Enabled bool

	perEndpointKA bool
	perPeerKA     bool

	trickle *trickle // present iff perEndpointKA
}

// SendNetState emits the endpoint's current NetState (plus, on unicast, one
// short NodeState per reachable node; or a ReqNetState when req is set) per
// spec.md §4.4's send_net_state.
func (ep *Endpoint) SendNetState(src, dst Peer, req bool) {
	l := []tlv.TLV{tlv.NetState(ep.engine.GetNetworkHash())}
	if req {
		l = append(l, tlv.ReqNetState())
	} else if dst != nil {
		for _, n := range ep.engine.ValidSortedNodes() {
			l = append(l, n.getNodeState(true))
		}
	}
	ep.send(src, dst, l)
}

// send prepends this endpoint's NodeEP identity (unless the engine is
// read-only) and hands the frame to the engine's System.
func (ep *Endpoint) send(src, dst Peer, l []tlv.TLV) {
	if !ep.engine.readOnly {
		own := ep.engine.ownNode
		l = append([]tlv.TLV{tlv.NodeEP([]byte(own.id), ep.ID)}, l...)
	}
	ep.engine.sys.Send(ep, src, dst, l)
}

// run drives every Trickle timer owned by this endpoint (its own, plus one
// per Neighbor when per-peer keepalives are enabled) and returns the
// earliest next wake time, or the zero Time if the endpoint owns no timers.
func (ep *Endpoint) run() (next timeOrNone) {
	for _, t := range ep.trickles() {
		next = next.withTime(t.run())
	}
	return next
}

// trickles enumerates every Trickle timer this endpoint currently owns.
func (ep *Endpoint) trickles() []*trickle {
	var out []*trickle
	if ep.perEndpointKA && ep.trickle != nil {
		out = append(out, ep.trickle)
	}
	if ep.perPeerKA {
		for _, nb := range ep.engine.neighborsOnEndpoint(ep.ID) {
			if nb.trickle != nil {
				out = append(out, nb.trickle)
			}
		}
	}
	return out
}

// setEnabled toggles the endpoint and fires ep_event on change (spec.md
// §4.4 "ext_ready"). Enabling resets the endpoint's Trickle state, since a
// newly-enabled endpoint is an inconsistency source in its own right
// (spec.md §4.3 "new endpoint enabled").
func (ep *Endpoint) setEnabled(enabled bool) {
	if enabled == ep.Enabled {
		return
	}
	ep.Enabled = enabled
	kind := EndpointRemoved
	if enabled {
		kind = EndpointAdded
		ep.resetTrickles()
		ep.engine.scheduleImmediate()
	}
	ep.engine.event(func(s Subscriber) { s.Endpoint(ep, kind) })
}

// resetTrickles resets every Trickle timer owned by ep to i=0, used when an
// inconsistency is observed (spec.md §4.3).
func (ep *Endpoint) resetTrickles() {
	for _, t := range ep.trickles() {
		t.setI(0)
	}
}
