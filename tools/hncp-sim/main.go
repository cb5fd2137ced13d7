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

// hncp-sim is a standalone diagnostic binary that builds an N-engine HNCP
// topology over internal/transport/simnet's virtual clock, advances it
// until every engine reports consistency (or a deadline passes), and
// prints the convergence wall time and node/TLV counts it observed —
// exactly the scenarios spec.md §8's Testable Properties describe, run
// without a test harness around them.
//
// Modes (topology shapes):
//
//	linear: N nodes in a line, each connected only to its neighbors
//	tube:   alias for linear, matching spec.md §8's "tube of 10" naming
//	ring:   linear plus a link closing node N-1 back to node 0
//	star:   one hub connected to N-1 spokes, spokes not connected to each other
//
// Usage examples:
//
//	hncp-sim -topology=tube -n=10
//	hncp-sim -topology=ring -n=6 -collide
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"dncp/internal/hncp"
	"dncp/internal/transport/simnet"
	"dncp/pkg/dncp"
	"dncp/pkg/tlv"
)

type topologyType string

const (
	topoLinear topologyType = "linear"
	topoTube   topologyType = "tube"
	topoRing   topologyType = "ring"
	topoStar   topologyType = "star"
)

type simNode struct {
	eng *dncp.Engine
	sn  *simnet.Node
	ep  *dncp.Endpoint
}

func main() {
	n := flag.Int("n", 10, "Number of engines in the topology")
	topoS := flag.String("topology", string(topoTube), "Topology shape: linear|tube|ring|star")
	maxDuration := flag.Duration("max_duration", 60*time.Second, "Simulated time budget before giving up on convergence")
	step := flag.Duration("step", 50*time.Millisecond, "Simulated clock step between convergence checks")
	collide := flag.Bool("collide", false, "Start every other node with the same node-id to exercise collision recovery (spec.md §8 scenario 5)")
	flag.Parse()

	topo := topologyType(*topoS)
	switch topo {
	case topoLinear, topoTube, topoRing, topoStar:
	default:
		fmt.Fprintf(os.Stderr, "unknown -topology=%s (want linear|tube|ring|star)\n", *topoS)
		os.Exit(2)
	}
	if *n < 2 {
		fmt.Fprintln(os.Stderr, "-n must be >= 2")
		os.Exit(2)
	}

	nw := simnet.NewNetwork()
	nodes := make([]*simNode, *n)
	for i := range nodes {
		id := nodeID(i, *collide)
		sn := simnet.NewNode(nw, nil)
		eng := dncp.New(sn, hncp.Profile{}, id, false)
		sn.SetReceiver(eng.Received)
		ep := eng.CreateEndpoint("eth0", dncp.EndpointOptions{})
		eng.SetEndpointEnabled(ep, true)
		if *collide {
			// A per-node marker makes nodes that share an id publish
			// different content, which is what exposes the collision.
			eng.AddTLV(tlv.New(100+uint16(i), []byte{byte(i)}))
		}
		nodes[i] = &simNode{eng: eng, sn: sn, ep: ep}
	}
	wireTopology(nw, nodes, topo)

	start := time.Now()
	converged := simnet.RunUntil(nw, *step, *maxDuration, func() bool { return allConsistent(nodes) })
	wall := time.Since(start)

	if !converged {
		fmt.Printf("FAILED to converge: topology=%s n=%d within simulated %v (wall %v)\n", topo, *n, *maxDuration, wall)
		os.Exit(1)
	}

	ids := map[dncp.NodeID]bool{}
	totalTLVs := 0
	for _, node := range nodes[0].eng.ValidSortedNodes() {
		ids[node.ID()] = true
		totalTLVs += len(node.TLVs())
	}
	fmt.Printf("converged: topology=%s n=%d valid_nodes=%d distinct_ids=%d total_tlvs=%d wall=%v\n",
		topo, *n, len(nodes[0].eng.ValidSortedNodes()), len(ids), totalTLVs, wall)
}

// nodeID assigns a 4-byte HNCP node-id. When collide is set, only two
// distinct ids are handed out, alternating from node to node, so collision
// recovery (spec.md §4.5 rule 5) has to run before convergence can
// complete (spec.md §8 scenario 5's ring-of-6).
func nodeID(i int, collide bool) dncp.NodeID {
	if collide {
		i = i % 2
	}
	return dncp.NodeID([]byte{0, 0, byte(i >> 8), byte(i)})
}

func allConsistent(nodes []*simNode) bool {
	for _, n := range nodes {
		if !n.eng.IsConsistent() {
			return false
		}
	}
	return true
}

func wireTopology(nw *simnet.Network, nodes []*simNode, topo topologyType) {
	switch topo {
	case topoLinear, topoTube:
		for i := 0; i+1 < len(nodes); i++ {
			nw.Connect(nodes[i].sn, nodes[i+1].sn)
		}
	case topoRing:
		for i := range nodes {
			nw.Connect(nodes[i].sn, nodes[(i+1)%len(nodes)].sn)
		}
	case topoStar:
		hub := nodes[0]
		for _, spoke := range nodes[1:] {
			nw.Connect(hub.sn, spoke.sn)
		}
	}
}
