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

// Package udp6 is the real SystemInterface binding from spec.md §6: a
// single UDP/IPv6 socket, joined to the HNCP multicast group on a set of
// named interfaces, with multicast loopback disabled and per-packet
// destination control messages enabled so the read loop can tell multicast
// and unicast frames apart (mirroring pysyma/si.py's
// SystemInterfaceSocket/recvmsg handling, expressed with
// golang.org/x/net/ipv6 instead of manual cmsg parsing).
//
// Transport drives its own single-threaded loop (spec.md §5): Run blocks
// the calling goroutine, reading packets and firing timers itself, so every
// dncp.Engine callback this Transport ever invokes runs on that one
// goroutine.
package udp6

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"

	"dncp/pkg/dncp"
	"dncp/pkg/tlv"
)

// Receiver is the subset of *dncp.Engine this transport drives.
type Receiver interface {
	Received(ep *dncp.Endpoint, src, dst dncp.Peer, l []tlv.TLV)
}

// Config configures a Transport. Group and Port default to HNCP's wire
// binding (spec.md §6) when zero.
type Config struct {
	Group string
	Port  int

	// Interfaces are the interface names to join the multicast group on
	// and to create a dncp.Endpoint for, one-to-one.
	Interfaces []string

	Logger *log.Logger
}

// endpointBinding pairs a created dncp.Endpoint with the OS interface index
// used to join multicast and to tag outgoing multicast control messages.
type endpointBinding struct {
	ep      *dncp.Endpoint
	ifIndex int
}

// Transport is the real SystemInterface: one IPv6 UDP socket shared across
// every bound interface.
type Transport struct {
	cfg    Config
	conn   *ipv6.PacketConn
	udp    *net.UDPConn
	group  *net.UDPAddr
	logger *log.Logger

	recv Receiver

	byName  map[string]*endpointBinding
	byIndex map[int]*endpointBinding

	timers timerHeap
	nextID uint64
}

// New opens and configures the UDP/IPv6 socket (spec.md §6: multicast
// loopback disabled, per-packet destination info requested) but does not
// yet join any interface or start the read loop; call Bind then Run.
func New(cfg Config) (*Transport, error) {
	if cfg.Group == "" {
		cfg.Group = "ff02::8808"
	}
	if cfg.Port == 0 {
		cfg.Port = 8808
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(nopWriter{}, "", 0)
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("udp6: listen: %w", err)
	}
	udpConn := pc.(*net.UDPConn)

	conn := ipv6.NewPacketConn(udpConn)
	if err := conn.SetMulticastLoopback(false); err != nil {
		return nil, fmt.Errorf("udp6: disable multicast loopback: %w", err)
	}
	if err := conn.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
		return nil, fmt.Errorf("udp6: request packet info: %w", err)
	}

	groupAddr, err := net.ResolveUDPAddr("udp6", fmt.Sprintf("[%s]:%d", cfg.Group, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("udp6: resolve multicast group: %w", err)
	}

	return &Transport{
		cfg:     cfg,
		conn:    conn,
		udp:     udpConn,
		group:   groupAddr,
		logger:  logger,
		byName:  map[string]*endpointBinding{},
		byIndex: map[int]*endpointBinding{},
	}, nil
}

// SetReceiver wires the engine's Received method in once the engine exists
// (the engine needs this Transport as its System at construction, so the
// two are necessarily built in two steps, same as simnet.Node).
func (tr *Transport) SetReceiver(r Receiver) { tr.recv = r }

// Bind creates one dncp.Endpoint per configured interface, joins each to
// the multicast group, and enables it (spec.md §6's wire binding applied to
// spec.md §4.4's create_ep/ext_ready).
func (tr *Transport) Bind(eng *dncp.Engine) error {
	for _, name := range tr.cfg.Interfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return fmt.Errorf("udp6: interface %q: %w", name, err)
		}
		if err := tr.conn.JoinGroup(iface, tr.group); err != nil {
			return fmt.Errorf("udp6: join group on %q: %w", name, err)
		}
		ep := eng.CreateEndpoint(name, dncp.EndpointOptions{})
		b := &endpointBinding{ep: ep, ifIndex: iface.Index}
		tr.byName[name] = b
		tr.byIndex[iface.Index] = b
		eng.SetEndpointEnabled(ep, true)
	}
	return nil
}

// Now implements dncp.System.
func (tr *Transport) Now() time.Time { return time.Now() }

// Schedule implements dncp.System. Only ever called from the Run goroutine
// (the engine's own single-threaded contract, spec.md §5), so the timer
// heap needs no locking.
func (tr *Transport) Schedule(dt time.Duration, cb func()) dncp.TimerHandle {
	tr.nextID++
	it := &timerItem{at: time.Now().Add(dt), seq: tr.nextID, cb: cb}
	heap.Push(&tr.timers, it)
	return handle{it: it}
}

// Send implements dncp.System: dst == nil means multicast on ep's
// interface; a non-nil dst is a *net.UDPAddr previously observed as a src
// on Received.
func (tr *Transport) Send(ep *dncp.Endpoint, src, dst dncp.Peer, l []tlv.TLV) {
	b := tlv.EncodeAll(l)
	binding, ok := tr.byName[ep.Name]
	if !ok {
		tr.logger.Printf("udp6: send on unknown endpoint %q", ep.Name)
		return
	}
	if dst == nil {
		cm := &ipv6.ControlMessage{IfIndex: binding.ifIndex}
		if _, err := tr.conn.WriteTo(b, cm, tr.group); err != nil {
			tr.logger.Printf("udp6: multicast send on %q: %v", ep.Name, err)
		}
		return
	}
	addr, ok := dst.(*net.UDPAddr)
	if !ok {
		tr.logger.Printf("udp6: send: dst is not a *net.UDPAddr: %T", dst)
		return
	}
	if _, err := tr.conn.WriteTo(b, nil, addr); err != nil {
		tr.logger.Printf("udp6: unicast send to %v on %q: %v", addr, ep.Name, err)
	}
}

// inboundPacket is handed from the reader goroutine to the Run loop.
type inboundPacket struct {
	data []byte
	cm   *ipv6.ControlMessage
	src  *net.UDPAddr
	err  error
}

// Run drives the transport's single-threaded loop until ctx is canceled
// (spec.md §5 "max_duration bound" when ctx carries a deadline): read
// inbound packets, dispatch them to the bound engine, and fire due timers,
// all on the calling goroutine.
func (tr *Transport) Run(ctx context.Context) error {
	pkts := make(chan inboundPacket, 64)
	go tr.readLoop(ctx, pkts)

	for {
		var timer *time.Timer
		if tr.timers.Len() > 0 {
			d := time.Until(tr.timers[0].at)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case p := <-pkts:
			if timer != nil {
				timer.Stop()
			}
			if p.err != nil {
				tr.logger.Printf("udp6: read: %v", p.err)
				continue
			}
			tr.deliver(p)

		case <-timerFireChan(timer):
			tr.fireDue()
		}
	}
}

// timerFireChan returns t.C, or a nil channel (which blocks forever in a
// select) when no timer is pending.
func timerFireChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (tr *Transport) fireDue() {
	now := time.Now()
	for tr.timers.Len() > 0 && !tr.timers[0].at.After(now) {
		it := heap.Pop(&tr.timers).(*timerItem)
		if !it.cancelled {
			it.cb()
		}
	}
}

func (tr *Transport) readLoop(ctx context.Context, out chan<- inboundPacket) {
	buf := make([]byte, 1<<16)
	for {
		if ctx.Err() != nil {
			return
		}
		n, cm, src, err := tr.conn.ReadFrom(buf)
		if err != nil {
			select {
			case out <- inboundPacket{err: err}:
			case <-ctx.Done():
			}
			return
		}
		data := append([]byte(nil), buf[:n]...)
		udpSrc, _ := src.(*net.UDPAddr)
		select {
		case out <- inboundPacket{data: data, cm: cm, src: udpSrc}:
		case <-ctx.Done():
			return
		}
	}
}

// deliver decodes one inbound packet and dispatches it to the bound engine
// via Received, resolving which Endpoint it arrived on from the control
// message's interface index and whether dst denotes multicast or unicast
// (spec.md §6: "request per-packet destination info to distinguish
// multicast from unicast on ingress").
func (tr *Transport) deliver(p inboundPacket) {
	if tr.recv == nil || p.cm == nil {
		return
	}
	binding, ok := tr.byIndex[p.cm.IfIndex]
	if !ok {
		return
	}
	var dst dncp.Peer
	if p.cm.Dst != nil && !p.cm.Dst.IsMulticast() {
		dst = &net.UDPAddr{IP: p.cm.Dst, Port: tr.cfg.Port}
	}
	tr.recv.Received(binding.ep, p.src, dst, tlv.DecodeAll(p.data))
}

// Close releases the underlying socket.
func (tr *Transport) Close() error { return tr.udp.Close() }

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// timerItem is one scheduled callback, ordered by expiry in a min-heap,
// identical in shape to internal/transport/simnet's but driven by the
// wall clock instead of a virtual one.
type timerItem struct {
	at        time.Time
	seq       uint64
	cb        func()
	cancelled bool
}

type timerHeap []*timerItem

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerItem)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type handle struct{ it *timerItem }

func (h handle) Cancel() { h.it.cancelled = true }
