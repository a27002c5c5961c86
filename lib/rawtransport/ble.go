// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rawtransport

import (
	"fmt"
	"sync/atomic"

	"github.com/sieluna/blindsfabric/lib/config"
)

// BLELink is the capability a concrete BLE stack must provide beneath
// this package (spec's explicit Non-goal: "no BLE stack implementation
// below the raw-transport interface" -- we stop at this seam and let a
// platform-specific driver satisfy it, the way the teacher's
// lib/connections stops at net.Conn and never reimplements TCP/IP).
type BLELink interface {
	// Write sends one GATT write of at most config.BLEOptions.MaxMTU
	// bytes to the characteristic.
	Write(p []byte) error
	// Notifications delivers incoming characteristic-notify payloads.
	Notifications() <-chan []byte
	Close() error
}

// BLECentralDriver scans for and connects to a peripheral advertising
// the configured service UUID.
type BLECentralDriver interface {
	Connect(mac [6]byte, opts config.BLEOptions) (BLELink, error)
}

// BLECentralTransport adapts a BLELink (the "central" role: scans,
// connects to a target MAC, subscribes to notifications) to Transport.
// Spec §4.5: "bi-directional traffic flows through bounded channels of
// capacity 4 in each direction."
type BLECentralTransport struct {
	link   BLELink
	rx     chan []byte
	closed atomic.Bool
	done   chan struct{}
}

const bleChannelCapacity = 4

// DialBLECentral connects driver to mac and starts forwarding
// notifications into a capacity-4 channel.
func DialBLECentral(driver BLECentralDriver, mac [6]byte, opts config.BLEOptions) (*BLECentralTransport, error) {
	link, err := driver.Connect(mac, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: ble connect: %v", ErrNetworkError, err)
	}
	t := &BLECentralTransport{link: link, rx: make(chan []byte, bleChannelCapacity), done: make(chan struct{})}
	go t.pump()
	return t, nil
}

func (t *BLECentralTransport) pump() {
	for {
		select {
		case p, ok := <-t.link.Notifications():
			if !ok {
				return
			}
			select {
			case t.rx <- p:
			case <-t.done:
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *BLECentralTransport) SendBytes(p []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := t.link.Write(p); err != nil {
		return fmt.Errorf("%w: ble write: %v", ErrNetworkError, err)
	}
	return nil
}

// ReceiveBytes is non-blocking: it returns ok=false, err=nil if no
// notification is queued right now, matching spec's Ok(None) case.
func (t *BLECentralTransport) ReceiveBytes(buf []byte) (int, bool, error) {
	if t.closed.Load() {
		return 0, false, ErrClosed
	}
	select {
	case p, ok := <-t.rx:
		if !ok {
			return 0, false, ErrClosed
		}
		n := copy(buf, p)
		return n, true, nil
	default:
		return 0, false, nil
	}
}

func (t *BLECentralTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.done)
	return t.link.Close()
}

// BLEPeripheralDriver advertises the configured service UUID and
// accepts exactly one central connection at a time, restarting
// advertising whenever that connection drops (spec §4.5).
type BLEPeripheralDriver interface {
	Advertise(opts config.BLEOptions) error
	// Accept blocks until a central connects, returning the link for
	// that single session.
	Accept() (BLELink, error)
	StopAdvertising() error
}

// BLEPeripheralTransport adapts the peripheral role to Transport. Only
// one BLELink is live at a time; once it closes, callers are expected
// to call Accept again (mirroring the restart-advertising contract) --
// AcceptNext does that restart for them.
type BLEPeripheralTransport struct {
	driver BLEPeripheralDriver
	opts   config.BLEOptions
	link   BLELink
	rx     chan []byte
	done   chan struct{}
	closed atomic.Bool
}

// ListenBLEPeripheral starts advertising and returns a transport with
// no connected central yet; call AcceptNext to wait for one.
func ListenBLEPeripheral(driver BLEPeripheralDriver, opts config.BLEOptions) (*BLEPeripheralTransport, error) {
	if err := driver.Advertise(opts); err != nil {
		return nil, fmt.Errorf("%w: ble advertise: %v", ErrNetworkError, err)
	}
	return &BLEPeripheralTransport{driver: driver, opts: opts}, nil
}

// AcceptNext blocks for the next central connection, replacing any
// prior session.
func (t *BLEPeripheralTransport) AcceptNext() error {
	link, err := t.driver.Accept()
	if err != nil {
		return fmt.Errorf("%w: ble accept: %v", ErrNetworkError, err)
	}
	t.link = link
	t.rx = make(chan []byte, bleChannelCapacity)
	t.done = make(chan struct{})
	go t.pump()
	return nil
}

func (t *BLEPeripheralTransport) pump() {
	link, rx, done := t.link, t.rx, t.done
	for {
		select {
		case p, ok := <-link.Notifications():
			if !ok {
				t.driver.Advertise(t.opts)
				return
			}
			select {
			case rx <- p:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

func (t *BLEPeripheralTransport) SendBytes(p []byte) error {
	if t.closed.Load() || t.link == nil {
		return ErrClosed
	}
	if err := t.link.Write(p); err != nil {
		return fmt.Errorf("%w: ble write: %v", ErrNetworkError, err)
	}
	return nil
}

func (t *BLEPeripheralTransport) ReceiveBytes(buf []byte) (int, bool, error) {
	if t.closed.Load() || t.link == nil {
		return 0, false, ErrClosed
	}
	select {
	case p, ok := <-t.rx:
		if !ok {
			return 0, false, ErrClosed
		}
		return copy(buf, p), true, nil
	default:
		return 0, false, nil
	}
}

func (t *BLEPeripheralTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.done != nil {
		close(t.done)
	}
	if err := t.driver.StopAdvertising(); err != nil {
		return err
	}
	if t.link != nil {
		return t.link.Close()
	}
	return nil
}
