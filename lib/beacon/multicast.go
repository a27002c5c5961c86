// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package beacon implements edge-to-edge discovery over IPv6 multicast,
// adapted from the teacher's lib/beacon/multicast.go: a writer that
// floods a datagram out every local interface and a reader that joins
// the multicast group on each of them. Unlike the teacher's BEP
// discovery, this carries no message-protocol payload of its own -- an
// edge in this fabric announces nothing but its own presence, so
// siblings on the same link can be logged/inventoried without a
// central registry.
package beacon

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/ipv6"

	"github.com/sieluna/blindsfabric/lib/logger"
)

var logFacility = logger.DefaultLogger.NewFacility("beacon", "edge-to-edge multicast discovery")

type recv struct {
	data []byte
	src  net.Addr
}

// Multicast sends and receives beacon datagrams on a fixed IPv6
// multicast group address (e.g. "[ff12::1234]:30303"). Reader and
// Writer are suture/v4-shaped services (func(context.Context)); both
// must be running for two-way discovery.
type Multicast struct {
	addr   string
	inbox  chan []byte
	outbox chan recv
}

func NewMulticast(addr string) *Multicast {
	return &Multicast{addr: addr, inbox: make(chan []byte), outbox: make(chan recv, 16)}
}

// Send enqueues data to be flooded out every interface; blocks until
// the writer service picks it up.
func (m *Multicast) Send(data []byte) { m.inbox <- data }

// Recv blocks for the next datagram a peer announced, or returns
// ok=false if ctx is done first.
func (m *Multicast) Recv(ctx context.Context) (data []byte, src net.Addr, ok bool) {
	select {
	case r := <-m.outbox:
		return r.data, r.src, true
	case <-ctx.Done():
		return nil, nil, false
	}
}

// Writer is a suture-ready service that sends every Send'd datagram out
// every network interface, a hop at a time (grounded on
// multicastWriter.Serve).
func (m *Multicast) Writer(ctx context.Context) {
	gaddr, err := net.ResolveUDPAddr("udp6", m.addr)
	if err != nil {
		logFacility.Warnln("resolve:", err)
		return
	}

	conn, err := net.ListenPacket("udp6", ":0")
	if err != nil {
		logFacility.Warnln("listen:", err)
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	pconn := ipv6.NewPacketConn(conn)
	wcm := &ipv6.ControlMessage{HopLimit: 1}

	for {
		select {
		case <-ctx.Done():
			return
		case bs := <-m.inbox:
			intfs, err := net.Interfaces()
			if err != nil {
				logFacility.Warnln("interfaces:", err)
				continue
			}
			var sent int
			for _, intf := range intfs {
				wcm.IfIndex = intf.Index
				pconn.SetWriteDeadline(time.Now().Add(time.Second))
				if _, err := pconn.WriteTo(bs, wcm, gaddr); err != nil {
					logFacility.Debugln("write to", gaddr, intf.Name, ":", err)
					continue
				}
				sent++
			}
			pconn.SetWriteDeadline(time.Time{})
			if sent == 0 {
				logFacility.Warnln("multicast send reached no interface")
			}
		}
	}
}

// Reader is a suture-ready service that joins the multicast group on
// every interface and delivers inbound datagrams via Recv (grounded on
// multicastReader.Serve).
func (m *Multicast) Reader(ctx context.Context) {
	gaddr, err := net.ResolveUDPAddr("udp6", m.addr)
	if err != nil {
		logFacility.Warnln("resolve:", err)
		return
	}

	conn, err := net.ListenPacket("udp6", m.addr)
	if err != nil {
		logFacility.Warnln("listen:", err)
		return
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	intfs, err := net.Interfaces()
	if err != nil {
		logFacility.Warnln("interfaces:", err)
		return
	}

	pconn := ipv6.NewPacketConn(conn)
	var joined int
	for _, intf := range intfs {
		if err := pconn.JoinGroup(&intf, &net.UDPAddr{IP: gaddr.IP}); err != nil {
			logFacility.Debugln("join group on", intf.Name, ":", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		logFacility.Warnln("no multicast interfaces available")
		return
	}

	buf := make([]byte, 65536)
	for {
		n, _, addr, err := pconn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logFacility.Debugln("read:", err)
			continue
		}
		c := make([]byte, n)
		copy(c, buf[:n])
		select {
		case m.outbox <- recv{c, addr}:
		default:
			logFacility.Debugln("dropping beacon datagram, outbox full")
		}
	}
}
