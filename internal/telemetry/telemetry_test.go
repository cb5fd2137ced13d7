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

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dncp/internal/hncp"
	"dncp/internal/transport/simnet"
	"dncp/pkg/dncp"
	"dncp/pkg/tlv"
)

func TestSubscriberTracksReachableNodeCount(t *testing.T) {
	nw := simnet.NewNetwork()
	aSn := simnet.NewNode(nw, nil)
	bSn := simnet.NewNode(nw, nil)
	nw.Connect(aSn, bSn)

	a := dncp.New(Wrap(aSn), hncp.Profile{}, dncp.NodeID([]byte{0, 0, 0, 1}), false)
	b := dncp.New(Wrap(bSn), hncp.Profile{}, dncp.NodeID([]byte{0, 0, 0, 2}), false)
	aSn.SetReceiver(a.Received)
	bSn.SetReceiver(b.Received)

	sub := &Subscriber{}
	a.AddSubscriber(sub)

	aep := a.CreateEndpoint("eth0", dncp.EndpointOptions{})
	a.SetEndpointEnabled(aep, true)
	bep := b.CreateEndpoint("eth0", dncp.EndpointOptions{})
	b.SetEndpointEnabled(bep, true)

	ok := simnet.RunUntil(nw, 50*time.Millisecond, 60*time.Second, func() bool {
		return a.IsConsistent() && b.IsConsistent()
	})
	if !ok {
		t.Fatalf("did not converge")
	}

	if got := testutil.ToFloat64(reachableNodes); got < 1 {
		t.Fatalf("expected at least one tracked reachable node, got %v", got)
	}
}

func TestSystemWrapCountsSends(t *testing.T) {
	nw := simnet.NewNetwork()
	aSn := simnet.NewNode(nw, nil)
	bSn := simnet.NewNode(nw, nil)
	nw.Connect(aSn, bSn)

	wrapped := Wrap(aSn)
	a := dncp.New(wrapped, hncp.Profile{}, dncp.NodeID([]byte{0, 0, 0, 3}), false)
	b := dncp.New(bSn, hncp.Profile{}, dncp.NodeID([]byte{0, 0, 0, 4}), false)
	aSn.SetReceiver(a.Received)
	bSn.SetReceiver(b.Received)

	aep := a.CreateEndpoint("eth0", dncp.EndpointOptions{})
	a.SetEndpointEnabled(aep, true)
	bep := b.CreateEndpoint("eth0", dncp.EndpointOptions{})
	b.SetEndpointEnabled(bep, true)

	a.AddTLV(tlv.New(1, []byte("x")))

	before := testutil.ToFloat64(trickleSendsTotal)

	simnet.RunUntil(nw, 50*time.Millisecond, 5*time.Second, func() bool {
		return a.IsConsistent() && b.IsConsistent()
	})

	if len(aSn.Sent) == 0 {
		t.Fatalf("expected the wrapped System to have forwarded sends to the underlying transport")
	}
	if after := testutil.ToFloat64(trickleSendsTotal); after <= before {
		t.Fatalf("expected trickleSendsTotal to increase, before=%v after=%v", before, after)
	}
}
