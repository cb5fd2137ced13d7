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

// Scenario 4 (spec.md §8): two engines converge a key-value dict.
package shsp_test

import (
	"encoding/hex"
	"testing"
	"time"

	"dncp/internal/hncp"
	"dncp/internal/shsp"
	"dncp/internal/transport/simnet"
	"dncp/pkg/dncp"
)

func nodeID(b byte) dncp.NodeID {
	return dncp.NodeID([]byte{0, 0, 0, b})
}

func newEngine(t *testing.T, nw *simnet.Network, id dncp.NodeID) (*dncp.Engine, *simnet.Node) {
	t.Helper()
	sn := simnet.NewNode(nw, nil)
	eng := dncp.New(sn, hncp.Profile{}, id, false)
	sn.SetReceiver(eng.Received)
	ep := eng.CreateEndpoint("eth0", dncp.EndpointOptions{})
	eng.SetEndpointEnabled(ep, true)
	return eng, sn
}

func runUntilConsistent(t *testing.T, nw *simnet.Network, engs []*dncp.Engine, max time.Duration) {
	t.Helper()
	ok := simnet.RunUntil(nw, 50*time.Millisecond, max, func() bool {
		for _, e := range engs {
			if !e.IsConsistent() {
				return false
			}
		}
		return true
	})
	if !ok {
		t.Fatalf("topology did not converge within %v", max)
	}
}

func TestTwoNodeDictConverges(t *testing.T) {
	nw := simnet.NewNetwork()
	a, aSn := newEngine(t, nw, nodeID(1))
	b, bSn := newEngine(t, nw, nodeID(2))
	nw.Connect(aSn, bSn)

	aDict := shsp.New(a, shsp.Config{})
	bDict := shsp.New(b, shsp.Config{})

	aDict.UpdateDict(map[string]any{"foo": 1.0, "bar": "baz"})

	runUntilConsistent(t, nw, []*dncp.Engine{a, b}, 60*time.Second)

	seen := bDict.GetDict()
	aHash := hexHash(a.OwnNode().Hash())
	h, ok := seen[aHash]
	if !ok {
		t.Fatalf("B never saw A's dict entries, got %v", seen)
	}
	if h["foo"] != 1.0 || h["bar"] != "baz" {
		t.Fatalf("unexpected dict contents: %v", h)
	}

	aDict.SetDict(map[string]any{})

	ok2 := simnet.RunUntil(nw, 50*time.Millisecond, 60*time.Second, func() bool {
		_, present := bDict.GetDict()[hexHash(a.OwnNode().Hash())]
		return !present
	})
	if !ok2 {
		t.Fatalf("B's view of A's dict never cleared after SetDict({})")
	}
}

func TestUpdateDictRetractsOnNilValue(t *testing.T) {
	nw := simnet.NewNetwork()
	a, _ := newEngine(t, nw, nodeID(1))
	d := shsp.New(a, shsp.Config{})

	d.UpdateDict(map[string]any{"foo": 1.0})
	if len(a.LocalTLVs()) != 1 {
		t.Fatalf("expected one published TLV after UpdateDict, got %d", len(a.LocalTLVs()))
	}
	d.UpdateDict(map[string]any{"foo": nil})
	if len(a.LocalTLVs()) != 0 {
		t.Fatalf("expected retraction to clear published TLVs, got %d", len(a.LocalTLVs()))
	}
}

func TestUnchangedValueDoesNotRepublish(t *testing.T) {
	nw := simnet.NewNetwork()
	a, _ := newEngine(t, nw, nodeID(1))
	d := shsp.New(a, shsp.Config{})

	d.UpdateDict(map[string]any{"foo": "bar"})
	before := append([]byte(nil), a.LocalTLVs()[0].Body...)
	d.UpdateDict(map[string]any{"foo": "bar"})
	after := a.LocalTLVs()[0].Body
	if string(before) != string(after) {
		t.Fatalf("expected identical republication to leave the TLV body untouched (no fresh timestamp)")
	}
}

func TestAuthenticatedDictRejectsWrongPSK(t *testing.T) {
	nw := simnet.NewNetwork()
	a, aSn := newEngine(t, nw, nodeID(1))
	b, bSn := newEngine(t, nw, nodeID(2))
	nw.Connect(aSn, bSn)

	aDict := shsp.New(a, shsp.Config{PSK: []byte("correct horse battery staple")})
	bDict := shsp.New(b, shsp.Config{PSK: []byte("wrong guess")})

	aDict.UpdateDict(map[string]any{"k": "v"})

	runUntilConsistent(t, nw, []*dncp.Engine{a, b}, 60*time.Second)

	seen := bDict.GetDict()
	if _, ok := seen[hexHash(a.OwnNode().Hash())]; ok {
		t.Fatalf("expected a mismatched PSK to discard the container's children, got %v", seen)
	}
}

func TestAuthenticatedDictAcceptsMatchingPSK(t *testing.T) {
	nw := simnet.NewNetwork()
	a, aSn := newEngine(t, nw, nodeID(1))
	b, bSn := newEngine(t, nw, nodeID(2))
	nw.Connect(aSn, bSn)

	psk := []byte("shared secret")
	aDict := shsp.New(a, shsp.Config{PSK: psk})
	bDict := shsp.New(b, shsp.Config{PSK: psk})

	aDict.UpdateDict(map[string]any{"k": "v"})

	runUntilConsistent(t, nw, []*dncp.Engine{a, b}, 60*time.Second)

	seen := bDict.GetDict()
	h, ok := seen[hexHash(a.OwnNode().Hash())]
	if !ok || h["k"] != "v" {
		t.Fatalf("expected matching PSK to reveal the dict, got %v", seen)
	}
}

func hexHash(b []byte) string {
	return hex.EncodeToString(b)
}
