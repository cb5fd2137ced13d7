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

// Package hncp is the concrete HNCP profile: node-id width, hash function,
// Trickle/keepalive/grace constants, and the random node-id collision
// recovery HNCP specifies (spec.md §4.6).
package hncp

import (
	"crypto/md5"
	"math/rand"
	"time"

	"dncp/pkg/dncp"
)

// Wire binding constants (spec.md §6).
const (
	MulticastGroup = "ff02::8808"
	Port           = 8808
)

const (
	hashLength   = 8
	nodeIDLength = 4

	trickleIMin = 200 * time.Millisecond
	trickleIMax = 40 * time.Second
	trickleK    = 1

	keepaliveInterval   = 20 * time.Second
	keepaliveMultiplier = 2.1

	graceInterval = 60 * time.Second
)

// Profile implements dncp.Profile with HNCP's fixed constants.
type Profile struct{}

var _ dncp.Profile = Profile{}

func (Profile) HashLength() int   { return hashLength }
func (Profile) NodeIDLength() int { return nodeIDLength }

func (Profile) TrickleIMin() time.Duration { return trickleIMin }
func (Profile) TrickleIMax() time.Duration { return trickleIMax }
func (Profile) TrickleK() int              { return trickleK }

func (Profile) KeepaliveInterval() time.Duration { return keepaliveInterval }
func (Profile) KeepaliveMultiplier() float64     { return keepaliveMultiplier }
func (Profile) GraceInterval() time.Duration     { return graceInterval }

func (Profile) PerEndpointKA() bool { return true }
func (Profile) PerPeerKA() bool     { return false }

// Hash returns the first 8 bytes of MD5(b) (spec.md §4.6).
func (Profile) Hash(b []byte) []byte {
	sum := md5.Sum(b)
	return append([]byte(nil), sum[:hashLength]...)
}

// Collision reassigns the engine's node-id to a fresh, uniformly-random
// value not currently present in its node store (spec.md §4.6
// profile_collision).
func (Profile) Collision(d *dncp.Engine) {
	for {
		b := make([]byte, nodeIDLength)
		for i := range b {
			b[i] = byte(rand.Intn(256))
		}
		id := dncp.NodeID(b)
		if d.HasNode(id) {
			continue
		}
		d.SetNodeID(id)
		return
	}
}
