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

// TLVEventKind is the kind of change applied to a TLV set.
type TLVEventKind int

const (
	TLVAdded TLVEventKind = iota
	TLVRemoved
)

// NodeEventKind is the kind of change applied to the node store.
type NodeEventKind int

const (
	NodeAdded NodeEventKind = iota
	NodeRemoved
)

// EndpointEventKind is the kind of change applied to an endpoint.
type EndpointEventKind int

const (
	EndpointAdded EndpointEventKind = iota
	EndpointRemoved
	EndpointUpdated
)

// Subscriber receives engine events (spec.md §4.4 "add_subscriber"). Per
// spec.md §9's "dynamic subscriber dispatch" note, this is a single
// interface with one method per event kind; embed DefaultSubscriber to pick
// up no-op defaults and only override what you need.
type Subscriber interface {
	Republish()
	LocalTLV(t tlv.TLV, kind TLVEventKind)
	TLV(n *Node, t tlv.TLV, kind TLVEventKind)
	Node(n *Node, kind NodeEventKind)
	Endpoint(ep *Endpoint, kind EndpointEventKind)
	NetworkConsistent(isConsistent bool)
}

// DefaultSubscriber implements Subscriber with no-op methods so callers can
// embed it and override only the events they care about.
type DefaultSubscriber struct{}

func (DefaultSubscriber) Republish()                            {}
func (DefaultSubscriber) LocalTLV(tlv.TLV, TLVEventKind)        {}
func (DefaultSubscriber) TLV(*Node, tlv.TLV, TLVEventKind)      {}
func (DefaultSubscriber) Node(*Node, NodeEventKind)             {}
func (DefaultSubscriber) Endpoint(*Endpoint, EndpointEventKind) {}
func (DefaultSubscriber) NetworkConsistent(bool)                {}

var _ Subscriber = DefaultSubscriber{}
