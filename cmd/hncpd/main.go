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

// Command hncpd is a diagnostic HNCP node (spec.md §6): it joins the HNCP
// multicast group on the given interfaces, floods its own TLV set, and
// waits for the network to reach consistency. An SHSP dict rides on top of
// the engine: -publish adds local key-value entries (write mode only),
// -psk wraps them in the authenticated container, and -sink mirrors every
// node's converged dict out to an external system.
//
// On first convergence (network_consistent_event(true)) it prints every
// valid node's id, sequence number and TLVs, pushes the converged dict to
// the configured sink, then exits 0. If -t elapses first, it prints a
// timeout message and exits nonzero.
//
// Flag parsing happens up front, telemetry is opt-in, the transport runs
// in the background, and main blocks on whichever of convergence, timeout
// or transport failure happens first.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"dncp/internal/hncp"
	"dncp/internal/shsp"
	"dncp/internal/sinks"
	"dncp/internal/telemetry"
	"dncp/internal/transport/udp6"
	"dncp/pkg/dncp"
)

func main() {
	timeoutSec := flag.Int("t", 3, "Total runtime in seconds; exit nonzero if the network hasn't converged by then")
	writeEnabled := flag.Bool("w", false, "Write-enabled mode: publish TLVs and Neighbor relationships (default is read-only/observer)")
	debug := flag.Bool("d", false, "Enable verbose protocol trace on stderr")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	psk := flag.String("psk", "", "SHSP pre-shared key; wraps local entries in the authenticated container and unwraps matching peers'")
	publish := flag.String("publish", "", "Comma-separated k=v pairs to publish as SHSP dict entries (requires -w)")
	sinkName := flag.String("sink", "", "Mirror the converged SHSP dict to this sink on convergence: mock|redis|kafka (empty disables)")
	redisAddr := flag.String("redis_addr", "", "Redis address for -sink=redis; a logging stand-in is used when empty")
	kafkaTopic := flag.String("kafka_topic", "", "Kafka topic for -sink=kafka (defaults to shsp-dict-updates)")
	flag.Parse()

	ifnames := flag.Args()
	if len(ifnames) == 0 {
		fmt.Fprintln(os.Stderr, "usage: hncpd [-t seconds] [-w] [-d] [-psk key] [-publish k=v,...] [-sink mock|redis|kafka] [-metrics_addr :9090] ifname [ifname...]")
		os.Exit(2)
	}
	if *publish != "" && !*writeEnabled {
		fmt.Fprintln(os.Stderr, "hncpd: -publish requires -w (a read-only engine cannot publish dict entries)")
		os.Exit(2)
	}

	logger := log.New(io.Discard, "hncpd: ", log.LstdFlags)
	if *debug {
		logger = log.New(os.Stderr, "hncpd: ", log.LstdFlags|log.Lmicroseconds)
	}

	telemetry.Enable(telemetry.Config{MetricsAddr: *metricsAddr})

	var sink sinks.EventSink
	if *sinkName != "" {
		var err error
		sink, err = sinks.Build(*sinkName, sinks.Options{RedisAddr: *redisAddr, KafkaTopic: *kafkaTopic})
		if err != nil {
			fmt.Fprintf(os.Stderr, "hncpd: %v\n", err)
			os.Exit(2)
		}
	}

	tr, err := udp6.New(udp6.Config{
		Group:      hncp.MulticastGroup,
		Port:       hncp.Port,
		Interfaces: ifnames,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hncpd: %v\n", err)
		os.Exit(1)
	}
	defer tr.Close()

	sys := telemetry.Wrap(tr)
	eng := dncp.New(sys, hncp.Profile{}, "", !*writeEnabled)
	eng.SetLogger(logger)
	tr.SetReceiver(eng)
	eng.AddSubscriber(&telemetry.Subscriber{})

	dict := shsp.New(eng, shsp.Config{PSK: []byte(*psk)})
	if *publish != "" {
		entries, err := parsePublish(*publish)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hncpd: %v\n", err)
			os.Exit(2)
		}
		dict.UpdateDict(entries)
	}

	if err := tr.Bind(eng); err != nil {
		fmt.Fprintf(os.Stderr, "hncpd: %v\n", err)
		os.Exit(1)
	}

	converged := make(chan struct{})
	var once sync.Once
	eng.AddSubscriber(&convergenceWatcher{onConsistent: func(c bool) {
		if c {
			once.Do(func() { close(converged) })
		}
	}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutSec)*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx) }()

	select {
	case <-converged:
		dumpNodes(eng)
		mirrorDict(dict, sink, logger)
		os.Exit(0)
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "hncpd: timed out without reaching consistency")
		os.Exit(1)
	case err := <-runErr:
		fmt.Fprintf(os.Stderr, "hncpd: transport stopped: %v\n", err)
		os.Exit(1)
	}
}

// parsePublish turns "k=v,k2=v2" into an UpdateDict argument; values stay
// strings on the wire.
func parsePublish(s string) (map[string]any, error) {
	out := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed -publish entry %q (want k=v)", pair)
		}
		out[k] = v
	}
	return out, nil
}

// convergenceWatcher is a minimal dncp.Subscriber that only cares about the
// consistency transition; every other event is the no-op default.
type convergenceWatcher struct {
	dncp.DefaultSubscriber
	onConsistent func(bool)
}

func (w *convergenceWatcher) NetworkConsistent(c bool) { w.onConsistent(c) }

// dumpNodes prints every valid (reachable, non-empty) node's identity and
// published TLVs, per spec.md §6's convergence-dump CLI contract.
func dumpNodes(eng *dncp.Engine) {
	for _, n := range eng.ValidSortedNodes() {
		fmt.Printf("node %x seqno=%d hash=%x\n", []byte(n.ID()), n.Seqno(), n.Hash())
		for _, t := range n.TLVs() {
			fmt.Printf("  tlv type=%d len=%d body=%x\n", t.Type, len(t.Body), t.Body)
		}
	}
}

// mirrorDict pushes each node's converged key-value view to the configured
// sink. Best-effort by contract (spec.md §7): a sink failure is logged and
// never unwinds anything.
func mirrorDict(dict *shsp.Dict, sink sinks.EventSink, logger *log.Logger) {
	if sink == nil {
		return
	}
	now := time.Now().Unix()
	for nodeHash, kv := range dict.GetDict() {
		u := sinks.DictUpdate{NodeHashHex: nodeHash, Dict: kv, ObservedAt: now}
		if err := sink.OnDictChange(context.Background(), u); err != nil {
			logger.Printf("sink node=%s: %v", nodeHash, err)
		}
	}
}
