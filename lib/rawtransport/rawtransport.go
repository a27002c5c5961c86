// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rawtransport implements the spec's lowest transport layer
// (C5): a uniform send_bytes/receive_bytes contract, and concrete
// adapters for TCP, UDP, and the BLE central/peripheral roles. Every
// adapter surfaces one error kind per failing operation; callers are
// expected to drop and re-establish the connection rather than retry
// in place, the same contract the teacher's lib/connections package
// expects of its listeners and dialers.
package rawtransport

import "errors"

// ErrNetworkError is the single failure kind every Transport surfaces;
// wrap the underlying cause with fmt.Errorf("...: %w", ErrNetworkError)
// so callers can errors.Is against it without caring which transport
// kind produced it.
var ErrNetworkError = errors.New("rawtransport: network error")

// ErrClosed is returned by an operation attempted after Close.
var ErrClosed = errors.New("rawtransport: transport closed")

// Transport is the uniform contract every concrete adapter below
// implements (spec §4.5). ReceiveBytes returns ok=false, err=nil when
// there is no data available right now in a non-blocking read (the
// Ok(None) case); a blocking adapter simply never returns that case.
type Transport interface {
	SendBytes(p []byte) error
	ReceiveBytes(buf []byte) (n int, ok bool, err error)
	Close() error
}
