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

import (
	"bytes"
	"math/rand"
	"testing"
)

func fixtures() []TLV {
	return []TLV{
		ReqNetState(),
		ReqNodeState([]byte{1, 2, 3, 4}),
		NodeEP([]byte{1, 2, 3, 4}, 7),
		NetState(bytes.Repeat([]byte{0xaa}, 8)),
		NodeState([]byte{1, 2, 3, 4}, 5, 1000, bytes.Repeat([]byte{0xbb}, 8), nil),
		Neighbor([]byte{9, 9, 9, 9}, 2, 3),
		KAInterval(0, 20000),
		New(42, []byte("asd")),
		New(99, nil),
		New(100, []byte{1}),
		New(101, []byte{1, 2}),
		New(102, []byte{1, 2, 3}),
		New(103, []byte{1, 2, 3, 4}),
	}
}

func TestRoundTripSingle(t *testing.T) {
	for _, f := range fixtures() {
		b := f.Bytes()
		got, n, ok := Decode(b)
		if !ok {
			t.Fatalf("decode failed for type %d", f.Type)
		}
		if n != len(b) {
			t.Fatalf("type %d: consumed %d want %d", f.Type, n, len(b))
		}
		if !got.Equal(f) {
			t.Fatalf("type %d: roundtrip mismatch: %+v != %+v", f.Type, got, f)
		}
	}
}

func TestRoundTripList(t *testing.T) {
	l := fixtures()
	b := EncodeAll(l)
	got := DecodeAll(b)
	if len(got) != len(l) {
		t.Fatalf("got %d tlvs, want %d", len(got), len(l))
	}
	for i := range l {
		if !got[i].Equal(l[i]) {
			t.Fatalf("index %d: %+v != %+v", i, got[i], l[i])
		}
	}
}

func TestTruncatedTailDropped(t *testing.T) {
	l := fixtures()
	b := EncodeAll(l)
	b = append(b, 0, 1) // shorter than a header
	got := DecodeAll(b)
	if len(got) != len(l) {
		t.Fatalf("got %d tlvs, want %d (tail should be silently dropped)", len(got), len(l))
	}
}

func TestCanonicalOrderIndependentOfInsertion(t *testing.T) {
	l := fixtures()
	a := Sort(l)

	shuffled := append([]TLV(nil), l...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	b := Sort(shuffled)

	if !bytes.Equal(EncodeAll(a), EncodeAll(b)) {
		t.Fatalf("sorted-and-encoded form depends on insertion order")
	}
	for i := 1; i < len(a); i++ {
		if Compare(a[i-1], a[i]) > 0 {
			t.Fatalf("not sorted at index %d", i)
		}
	}
}

func TestInsertSetSemantics(t *testing.T) {
	var l []TLV
	a := New(1, []byte("a"))
	l, _ = Insert(l, a)
	l, existing := Insert(l, a)
	if len(l) != 1 {
		t.Fatalf("duplicate insert grew list to %d", len(l))
	}
	if !existing.Equal(a) {
		t.Fatalf("insert of duplicate should return existing element")
	}
}

func TestRemove(t *testing.T) {
	var l []TLV
	a := New(1, []byte("a"))
	b := New(2, []byte("b"))
	l, _ = Insert(l, a)
	l, _ = Insert(l, b)
	l = Remove(l, a)
	if len(l) != 1 || !l[0].Equal(b) {
		t.Fatalf("remove left unexpected list: %+v", l)
	}
}

func TestNestedContainerPrefixAndBody(t *testing.T) {
	nodeID := []byte{1, 2, 3, 4}
	hash := bytes.Repeat([]byte{0xcc}, 8)
	nested := EncodeAll([]TLV{New(42, []byte("asd"))})
	ns := NodeState(nodeID, 7, 12345, hash, nested)

	nf, ok := DecodeNodeState(ns, 4, 8)
	if !ok {
		t.Fatalf("DecodeNodeState failed")
	}
	if !bytes.Equal(nf.NodeID, nodeID) || nf.Seqno != 7 || nf.AgeMs != 12345 || !bytes.Equal(nf.Hash, hash) {
		t.Fatalf("unexpected fields: %+v", nf)
	}
	inner := DecodeAll(nf.Body)
	if len(inner) != 1 || inner[0].Type != 42 || string(inner[0].Body) != "asd" {
		t.Fatalf("unexpected nested tlvs: %+v", inner)
	}
}

func TestMalformedNestedBodyDoesNotAbortStream(t *testing.T) {
	nodeID := []byte{1, 2, 3, 4}
	hash := bytes.Repeat([]byte{0xdd}, 8)
	// A truncated nested TLV: header claims more body than is present.
	truncated := []byte{0, 55, 0, 10, 1, 2}
	ns := NodeState(nodeID, 1, 0, hash, truncated)
	after := New(7, []byte("next"))
	b := EncodeAll([]TLV{ns, after})

	got := DecodeAll(b)
	if len(got) != 2 {
		t.Fatalf("outer stream aborted early: got %d tlvs", len(got))
	}
	if got[1].Type != 7 {
		t.Fatalf("stream did not continue past malformed container: %+v", got[1])
	}
}
