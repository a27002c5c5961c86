// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rawtransport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sieluna/blindsfabric/lib/config"
)

func TestTCPRoundTrip(t *testing.T) {
	opts := config.DefaultTCPDialOptions()
	opts.Host = "127.0.0.1"
	opts.Port = 0

	ln, err := ListenTCP(opts)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	acceptErr := make(chan error, 1)
	var server *TCPTransport
	go func() {
		s, err := ln.Accept()
		server = s
		acceptErr <- err
	}()

	dialOpts := opts
	dialOpts.Port = ln.ln.Addr().(*net.TCPAddr).Port
	client, err := DialTCP(context.Background(), dialOpts)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.Close()

	if err := <-acceptErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.Close()

	if err := client.SendBytes([]byte("hello")); err != nil {
		t.Fatalf("SendBytes: %v", err)
	}
	buf := make([]byte, 16)
	n, ok, err := server.ReceiveBytes(buf)
	if err != nil || !ok {
		t.Fatalf("ReceiveBytes: n=%d ok=%v err=%v", n, ok, err)
	}
	if !bytes.Equal(buf[:n], []byte("hello")) {
		t.Fatalf("got %q, want hello", buf[:n])
	}
}

func TestTCPSendAfterCloseFails(t *testing.T) {
	opts := config.DefaultTCPDialOptions()
	opts.Host = "127.0.0.1"
	opts.Port = 0
	ln, err := ListenTCP(opts)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	dialOpts := opts
	dialOpts.Port = ln.ln.Addr().(*net.TCPAddr).Port

	accepted := make(chan *TCPTransport, 1)
	go func() {
		s, _ := ln.Accept()
		accepted <- s
	}()

	client, err := DialTCP(context.Background(), dialOpts)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	<-accepted
	client.Close()
	if err := client.SendBytes([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestUDPRoundTripCapturesRemoteEndpoint(t *testing.T) {
	server, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer server.Close()

	client, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer client.Close()

	client.remote = server.conn.LocalAddr()
	if err := client.SendBytes([]byte("ping")); err != nil {
		t.Fatalf("SendBytes: %v", err)
	}

	buf := make([]byte, 16)
	n, ok, err := server.ReceiveBytes(buf)
	if err != nil || !ok {
		t.Fatalf("ReceiveBytes: n=%d ok=%v err=%v", n, ok, err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want ping", buf[:n])
	}
	if server.RemoteEndpoint() == nil {
		t.Fatal("expected the first datagram to capture a remote endpoint")
	}
}

func TestUDPSendWithoutRemoteFails(t *testing.T) {
	u, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer u.Close()
	if err := u.SendBytes([]byte("x")); !errors.Is(err, ErrNoRemoteEndpoint) {
		t.Fatalf("expected ErrNoRemoteEndpoint, got %v", err)
	}
}

// fakeBLELink is an in-memory BLELink for driving the central/peripheral
// adapters without a real radio.
type fakeBLELink struct {
	writes        chan []byte
	notifications chan []byte
	closed        chan struct{}
}

func newFakeBLELink() *fakeBLELink {
	return &fakeBLELink{
		writes:        make(chan []byte, 8),
		notifications: make(chan []byte, 8),
		closed:        make(chan struct{}),
	}
}

func (f *fakeBLELink) Write(p []byte) error {
	cp := append([]byte(nil), p...)
	select {
	case f.writes <- cp:
		return nil
	case <-f.closed:
		return ErrClosed
	}
}
func (f *fakeBLELink) Notifications() <-chan []byte { return f.notifications }
func (f *fakeBLELink) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

type fakeCentralDriver struct{ link *fakeBLELink }

func (d *fakeCentralDriver) Connect(mac [6]byte, opts config.BLEOptions) (BLELink, error) {
	return d.link, nil
}

func TestBLECentralRoundTrip(t *testing.T) {
	link := newFakeBLELink()
	driver := &fakeCentralDriver{link: link}
	opts := config.DefaultBLEOptions()

	central, err := DialBLECentral(driver, [6]byte{1, 2, 3, 4, 5, 6}, opts)
	if err != nil {
		t.Fatalf("DialBLECentral: %v", err)
	}
	defer central.Close()

	if err := central.SendBytes([]byte("cmd")); err != nil {
		t.Fatalf("SendBytes: %v", err)
	}
	select {
	case got := <-link.writes:
		if string(got) != "cmd" {
			t.Fatalf("got %q, want cmd", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}

	link.notifications <- []byte("status")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		buf := make([]byte, 16)
		n, ok, err := central.ReceiveBytes(buf)
		if err != nil {
			t.Fatalf("ReceiveBytes: %v", err)
		}
		if ok {
			if string(buf[:n]) != "status" {
				t.Fatalf("got %q, want status", buf[:n])
			}
			return
		}
	}
	t.Fatal("timed out waiting for notification to arrive")
}

type fakePeripheralDriver struct {
	link        *fakeBLELink
	advertising bool
}

func (d *fakePeripheralDriver) Advertise(config.BLEOptions) error { d.advertising = true; return nil }
func (d *fakePeripheralDriver) Accept() (BLELink, error)          { return d.link, nil }
func (d *fakePeripheralDriver) StopAdvertising() error            { d.advertising = false; return nil }

func TestBLEPeripheralAcceptAndSend(t *testing.T) {
	link := newFakeBLELink()
	driver := &fakePeripheralDriver{link: link}
	opts := config.DefaultBLEOptions()

	p, err := ListenBLEPeripheral(driver, opts)
	if err != nil {
		t.Fatalf("ListenBLEPeripheral: %v", err)
	}
	defer p.Close()
	if !driver.advertising {
		t.Fatal("expected Advertise to have been called")
	}

	if err := p.AcceptNext(); err != nil {
		t.Fatalf("AcceptNext: %v", err)
	}
	if err := p.SendBytes([]byte("ack")); err != nil {
		t.Fatalf("SendBytes: %v", err)
	}
	select {
	case got := <-link.writes:
		if string(got) != "ack" {
			t.Fatalf("got %q, want ack", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}
}
