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

// Package shsp layers a distributed key-value dictionary over a *dncp.Engine
// already running the HNCP profile (spec.md §4.7). SHSP reuses HNCP's
// constants unmodified — it is not a distinct dncp.Profile, just an
// independent consumer of the engine's TLV set and ValidSortedNodes view,
// layered on top the way a higher-level protocol sits on a lower one
// rather than subclassing it.
//
// Two TLVs carry the protocol: SHSPKV (a `{k,v,ts}` JSON body) and, when a
// pre-shared key is configured, SHSPAuth — a container whose prefix is
// `MD5(psk ∥ nested-body)` and whose nested TLVs are the actual SHSPKV
// entries. Per spec.md §9's design note, the PSK lives on a Dict value
// passed explicitly to every decode call, not in package-global state.
package shsp

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"dncp/internal/telemetry"
	"dncp/pkg/dncp"
	"dncp/pkg/tlv"
)

// Registered SHSP TLV types (spec.md §4.7).
const (
	TypeKV   uint16 = 789
	TypeAuth uint16 = 790
)

const authHashLen = 16

// kvBody is the wire JSON body of a SHSPKV TLV.
type kvBody struct {
	K  string          `json:"k"`
	V  json.RawMessage `json:"v"`
	TS int64           `json:"ts"`
}

// Entry is one decoded SHSPKV record.
type Entry struct {
	Key       string
	Value     json.RawMessage
	Timestamp int64
}

// EncodeKV builds a SHSPKV TLV (type 789) from key, JSON-encoded value and
// a unix-seconds timestamp.
func EncodeKV(key string, value json.RawMessage, ts int64) tlv.TLV {
	b, _ := json.Marshal(kvBody{K: key, V: value, TS: ts})
	return tlv.New(TypeKV, b)
}

// DecodeKV parses a SHSPKV TLV body. A malformed (non-JSON) body reports
// ok=false; callers must not abort the surrounding stream.
func DecodeKV(t tlv.TLV) (Entry, bool) {
	if t.Type != TypeKV {
		return Entry{}, false
	}
	var b kvBody
	if err := json.Unmarshal(t.Body, &b); err != nil {
		return Entry{}, false
	}
	return Entry{Key: b.K, Value: b.V, Timestamp: b.TS}, true
}

// EncodeAuth wire-encodes nested (SHSPKV TLVs) back to back and wraps the
// result in a SHSPAuth container (type 790) authenticated by MD5(psk ∥
// nested-body) (spec.md §4.7).
func EncodeAuth(psk []byte, nested []tlv.TLV) tlv.TLV {
	body := tlv.EncodeAll(nested)
	sum := md5.Sum(append(append([]byte(nil), psk...), body...))
	v := make([]byte, 0, authHashLen+len(body))
	v = append(v, sum[:]...)
	v = append(v, body...)
	return tlv.New(TypeAuth, v)
}

// DecodeAuth verifies and unwraps a SHSPAuth container against psk. A
// mismatched hash discards the container's children (returns nil) without
// signaling an error to the caller, per spec.md §4.7.
func DecodeAuth(psk []byte, t tlv.TLV) []tlv.TLV {
	if t.Type != TypeAuth || len(t.Body) < authHashLen {
		return nil
	}
	hash := t.Body[:authHashLen]
	body := t.Body[authHashLen:]
	sum := md5.Sum(append(append([]byte(nil), psk...), body...))
	if !bytes.Equal(hash, sum[:]) {
		return nil
	}
	return tlv.DecodeAll(body)
}

// Config configures a Dict. PSK, when non-empty, wraps every locally
// published SHSPKV entry inside a single authenticated SHSPAuth container
// (spec.md §4.7). Now defaults to time.Now.
type Config struct {
	PSK []byte
	Now func() time.Time
}

type localEntry struct {
	raw json.RawMessage
	ts  int64
}

// Dict is the distributed key-value view: local mutation through
// UpdateDict/SetDict, converged reads through GetDict.
type Dict struct {
	eng *dncp.Engine
	psk []byte
	now func() time.Time

	local map[string]localEntry

	// published tracks the unwrapped per-key TLVs currently held in the
	// engine's publication buffer (used only when psk is empty).
	published map[string]tlv.TLV

	// container is the current SHSPAuth wrapper (used only when psk is
	// set); spec.md §9's container-invalidation note is implemented here
	// as "remove the old wrapper, encode and add a new one" rather than a
	// mutable cached encoding, since the whole dict is small.
	container     tlv.TLV
	haveContainer bool
}

// New returns a Dict layered over eng.
func New(eng *dncp.Engine, cfg Config) *Dict {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dict{
		eng:       eng,
		psk:       cfg.PSK,
		now:       now,
		local:     map[string]localEntry{},
		published: map[string]tlv.TLV{},
	}
}

// UpdateDict diffs values against the current local publication: an
// unchanged value is left alone, a nil value retracts the key, anything
// else is (re)published with a fresh timestamp (spec.md §4.7
// update_dict). Values are marshaled to JSON for the wire and for the
// unchanged-value comparison.
func (d *Dict) UpdateDict(values map[string]any) {
	changed := false
	for k, v := range values {
		old, existed := d.local[k]
		if v == nil {
			if existed {
				delete(d.local, k)
				changed = true
			}
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if existed && bytes.Equal(old.raw, raw) {
			continue
		}
		d.local[k] = localEntry{raw: raw, ts: d.now().Unix()}
		changed = true
	}
	if changed {
		d.republish()
	}
}

// SetDict replaces the entire local dict with values, retracting any key
// not present in values (spec.md §4.7 set_dict).
func (d *Dict) SetDict(values map[string]any) {
	merged := make(map[string]any, len(values)+len(d.local))
	for k, v := range values {
		merged[k] = v
	}
	for k := range d.local {
		if _, ok := merged[k]; !ok {
			merged[k] = nil
		}
	}
	d.UpdateDict(merged)
}

// republish recomputes the wire representation of the local dict and
// applies the minimal set of AddTLV/RemoveTLV calls (or, when a PSK is
// configured, swaps the single SHSPAuth container) to bring the engine's
// publication buffer in line with d.local.
func (d *Dict) republish() {
	entries := make([]tlv.TLV, 0, len(d.local))
	for k, e := range d.local {
		entries = append(entries, EncodeKV(k, e.raw, e.ts))
	}
	entries = tlv.Sort(entries)
	telemetry.SetSHSPDictSize(len(entries))

	if len(d.psk) == 0 {
		want := make(map[string]tlv.TLV, len(entries))
		for _, t := range entries {
			want[string(t.Bytes())] = t
		}
		for key, t := range d.published {
			if _, ok := want[key]; !ok {
				d.eng.RemoveTLV(t)
				delete(d.published, key)
			}
		}
		for key, t := range want {
			if _, ok := d.published[key]; !ok {
				d.eng.AddTLV(t)
				d.published[key] = t
			}
		}
		return
	}

	c := EncodeAuth(d.psk, entries)
	if d.haveContainer {
		d.eng.RemoveTLV(d.container)
	}
	d.eng.AddTLV(c)
	d.container = c
	d.haveContainer = true
}

// entriesForNode collects every SHSPKV entry n publishes, either directly
// or nested inside a SHSPAuth container it authenticates with our PSK.
func (d *Dict) entriesForNode(n *dncp.Node) []Entry {
	var out []Entry
	for _, t := range n.TLVs() {
		switch t.Type {
		case TypeKV:
			if e, ok := DecodeKV(t); ok {
				out = append(out, e)
			}
		case TypeAuth:
			for _, nested := range DecodeAuth(d.psk, t) {
				if e, ok := DecodeKV(nested); ok {
					out = append(out, e)
				}
			}
		}
	}
	return out
}

// GetDict returns, for every reachable node publishing at least one
// SHSPKV entry, a `{key: value}` map keyed by that node's hash in hex
// (spec.md §4.7 get_dict).
func (d *Dict) GetDict() map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, n := range d.eng.ValidSortedNodes() {
		h := map[string]any{}
		for _, e := range d.entriesForNode(n) {
			var v any
			if err := json.Unmarshal(e.Value, &v); err == nil {
				h[e.Key] = v
			}
		}
		if len(h) > 0 {
			out[hex.EncodeToString(n.Hash())] = h
		}
	}
	return out
}

// TimestampedValue is one entry of GetDictWithTimestamps.
type TimestampedValue struct {
	Timestamp int64
	Value     any
}

// GetDictWithTimestamps is GetDict but every value is paired with the
// `ts` it was published with (spec.md §4.7: "{key: [ts, value]}").
func (d *Dict) GetDictWithTimestamps() map[string]map[string]TimestampedValue {
	out := map[string]map[string]TimestampedValue{}
	for _, n := range d.eng.ValidSortedNodes() {
		h := map[string]TimestampedValue{}
		for _, e := range d.entriesForNode(n) {
			var v any
			if err := json.Unmarshal(e.Value, &v); err == nil {
				h[e.Key] = TimestampedValue{Timestamp: e.Timestamp, Value: v}
			}
		}
		if len(h) > 0 {
			out[hex.EncodeToString(n.Hash())] = h
		}
	}
	return out
}
