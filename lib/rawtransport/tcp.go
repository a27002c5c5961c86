// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rawtransport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sieluna/blindsfabric/lib/config"
)

// TCPTransport wraps a net.Conn as a Transport. Length framing is not
// owned here (spec §4.5: "length is not owned here -- raw transport is
// just bytes"); C6 composes C3's length-prefixed framing on top.
type TCPTransport struct {
	conn   net.Conn
	closed atomic.Bool
}

// DialTCP connects to opts.Host:opts.Port within opts.DialTimeout.
func DialTCP(ctx context.Context, opts config.TCPDialOptions) (*TCPTransport, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", opts.Host, opts.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", ErrNetworkError, opts.Host, opts.Port, err)
	}
	return &TCPTransport{conn: conn}, nil
}

// TCPListener accepts inbound TCP connections, wrapping each as a
// *TCPTransport.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP opens a listener on opts.Host:opts.Port.
func ListenTCP(opts config.TCPDialOptions) (*TCPListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", opts.Host, opts.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s:%d: %v", ErrNetworkError, opts.Host, opts.Port, err)
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept() (*TCPTransport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("%w: accept: %v", ErrNetworkError, err)
	}
	return &TCPTransport{conn: conn}, nil
}

func (l *TCPListener) Close() error { return l.ln.Close() }

func (t *TCPTransport) SendBytes(p []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if _, err := t.conn.Write(p); err != nil {
		return fmt.Errorf("%w: write: %v", ErrNetworkError, err)
	}
	return nil
}

// ReceiveBytes blocks until at least one byte is read, EOF, or error;
// TCP has no "no data now" case on a blocking socket, so ok is always
// true on a nil error.
func (t *TCPTransport) ReceiveBytes(buf []byte) (int, bool, error) {
	if t.closed.Load() {
		return 0, false, ErrClosed
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		return n, false, fmt.Errorf("%w: read: %v", ErrNetworkError, err)
	}
	return n, true, nil
}

func (t *TCPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

// RemoteAddr reports the peer's address, for logging.
func (t *TCPTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }
