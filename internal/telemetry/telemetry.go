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

// Package telemetry provides opt-in, low-overhead Prometheus metrics for a
// running engine. Every public constructor is safe to call even when
// telemetry is never enabled: the Subscriber and System wrapper just update
// counters nobody scrapes.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dncp/pkg/dncp"
	"dncp/pkg/tlv"
)

// Config controls the metrics HTTP endpoint. MetricsAddr, when non-empty,
// starts a dedicated server serving /metrics; leave it empty to register
// promhttp yourself against an existing mux.
type Config struct {
	MetricsAddr string
}

// Prometheus metrics — global only, no per-node-id or per-key label
// cardinality (an engine can run for the lifetime of a process watching an
// unbounded set of peers).
var (
	trickleSendsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dncp_trickle_sends_total",
		Help: "Total frames sent by the engine's SystemInterface, across every endpoint",
	})
	networkHashChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dncp_network_hash_changes_total",
		Help: "Total times the network-hash aggregate changed",
	})
	consistencyTransitionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dncp_consistency_transitions_total",
		Help: "Total consistent/inconsistent transitions reported by the engine",
	})
	reachableNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dncp_reachable_nodes",
		Help: "Nodes added to the engine's node store minus nodes removed, counted from when the Subscriber was registered (nodes already present then, such as the own node, are not included)",
	})
	isConsistent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dncp_is_consistent",
		Help: "1 if the engine currently believes the network is consistent, else 0",
	})
	shspDictSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dncp_shsp_dict_size",
		Help: "Number of SHSPKV entries in the local node's published dict",
	})
)

func init() {
	prometheus.MustRegister(trickleSendsTotal, networkHashChangesTotal,
		consistencyTransitionsTotal, reachableNodes, isConsistent, shspDictSize)
}

// Enable starts the standalone /metrics endpoint when cfg.MetricsAddr is
// set. Safe to call multiple times.
func Enable(cfg Config) {
	if cfg.MetricsAddr == "" {
		return
	}
	startMetricsEndpoint(cfg.MetricsAddr)
}

func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

// SetSHSPDictSize records the current local-dict key count; called by
// internal/shsp.Dict after every republish.
func SetSHSPDictSize(n int) {
	shspDictSize.Set(float64(n))
}

// Subscriber implements dncp.Subscriber, feeding node-count and
// consistency-transition metrics from engine events. Register it via
// Engine.AddSubscriber. The node count moves only on NodeAdded/NodeRemoved
// events seen after registration, so nodes already in the store at that
// point (the own node created by dncp.New) are not counted.
type Subscriber struct {
	dncp.DefaultSubscriber
	count int
}

func (s *Subscriber) Node(n *dncp.Node, kind dncp.NodeEventKind) {
	switch kind {
	case dncp.NodeAdded:
		s.count++
	case dncp.NodeRemoved:
		s.count--
	}
	reachableNodes.Set(float64(s.count))
}

func (s *Subscriber) NetworkConsistent(consistent bool) {
	consistencyTransitionsTotal.Inc()
	if consistent {
		isConsistent.Set(1)
	} else {
		isConsistent.Set(0)
	}
}

var _ dncp.Subscriber = (*Subscriber)(nil)

// System wraps a dncp.System, counting every frame sent and every network
// hash observed at send time so trickleSendsTotal/networkHashChangesTotal
// stay accurate without touching the engine's internals.
type System struct {
	dncp.System
	lastHash string
}

// Wrap returns a System that forwards to inner while recording metrics.
func Wrap(inner dncp.System) *System {
	return &System{System: inner}
}

func (s *System) Send(ep *dncp.Endpoint, src, dst dncp.Peer, l []tlv.TLV) {
	trickleSendsTotal.Inc()
	for _, t := range l {
		if t.Type == tlv.TypeNetState {
			h := string(tlv.NetStateHash(t))
			if h != s.lastHash {
				s.lastHash = h
				networkHashChangesTotal.Inc()
			}
		}
	}
	s.System.Send(ep, src, dst, l)
}
