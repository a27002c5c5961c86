// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rawtransport

import (
	"fmt"
	"net"
	"sync"
)

// UDPTransport wraps a net.PacketConn, additionally remembering the
// remote endpoint the way spec §4.5 requires: unset until the first
// received datagram captures it, after which SendBytes always targets
// that peer.
type UDPTransport struct {
	conn net.PacketConn

	mu     sync.Mutex
	remote net.Addr
}

// NewUDPTransport wraps conn. If remote is non-nil the transport is
// pre-bound to it (the dialing side knows its peer up front); otherwise
// the first ReceiveBytes call captures whichever address sent it.
func NewUDPTransport(conn net.PacketConn, remote net.Addr) *UDPTransport {
	return &UDPTransport{conn: conn, remote: remote}
}

// ListenUDP opens a UDP socket on addr (host:port, empty host for all
// interfaces), with no remote endpoint pinned yet.
func ListenUDP(addr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen udp %s: %v", ErrNetworkError, addr, err)
	}
	return NewUDPTransport(conn, nil), nil
}

// RemoteEndpoint returns the captured peer address, if any.
func (u *UDPTransport) RemoteEndpoint() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.remote
}

// ErrNoRemoteEndpoint is returned by SendBytes before any peer has been
// learned, either via NewUDPTransport or a prior ReceiveBytes.
var ErrNoRemoteEndpoint = fmt.Errorf("%w: no remote endpoint known yet", ErrNetworkError)

func (u *UDPTransport) SendBytes(p []byte) error {
	u.mu.Lock()
	remote := u.remote
	u.mu.Unlock()
	if remote == nil {
		return ErrNoRemoteEndpoint
	}
	if _, err := u.conn.WriteTo(p, remote); err != nil {
		return fmt.Errorf("%w: write to %v: %v", ErrNetworkError, remote, err)
	}
	return nil
}

func (u *UDPTransport) ReceiveBytes(buf []byte) (int, bool, error) {
	n, addr, err := u.conn.ReadFrom(buf)
	if err != nil {
		return n, false, fmt.Errorf("%w: read: %v", ErrNetworkError, err)
	}
	u.mu.Lock()
	if u.remote == nil {
		u.remote = addr
	}
	u.mu.Unlock()
	return n, true, nil
}

func (u *UDPTransport) Close() error { return u.conn.Close() }
