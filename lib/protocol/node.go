// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package protocol defines the wire-level message model shared verbatim
// across the cloud, edge, and device tiers: NodeId, Priority,
// MessageHeader, the MessagePayload sum type and its sub-variants, plus
// a small set of convenience builders. Encode/decode live in
// lib/wireformat and lib/framing; this package only defines the shapes.
package protocol

import "fmt"

// NodeKind is the tag of the NodeId sum type.
type NodeKind uint8

const (
	KindCloud NodeKind = iota
	KindEdge
	KindDevice
	KindAny
)

// NodeId identifies a participant in the fabric. Its zero value is the
// Cloud variant. Any is only ever valid as a message target (broadcast).
type NodeId struct {
	kind   NodeKind
	edge   uint8
	device [6]byte
}

// NewCloud returns the NodeId for the (singleton) cloud tier.
func NewCloud() NodeId { return NodeId{kind: KindCloud} }

// NewEdge returns the NodeId for edge aggregator id.
func NewEdge(id uint8) NodeId { return NodeId{kind: KindEdge, edge: id} }

// NewDevice returns the NodeId for the device with the given BLE MAC.
func NewDevice(mac [6]byte) NodeId { return NodeId{kind: KindDevice, device: mac} }

// NewAny returns the broadcast-only wildcard target.
func NewAny() NodeId { return NodeId{kind: KindAny} }

func (n NodeId) Kind() NodeKind { return n.kind }

// EdgeID returns the edge id and true if n is an Edge variant.
func (n NodeId) EdgeID() (uint8, bool) {
	if n.kind != KindEdge {
		return 0, false
	}
	return n.edge, true
}

// DeviceMAC returns the device MAC and true if n is a Device variant.
func (n NodeId) DeviceMAC() ([6]byte, bool) {
	if n.kind != KindDevice {
		return [6]byte{}, false
	}
	return n.device, true
}

func (n NodeId) IsCloud() bool  { return n.kind == KindCloud }
func (n NodeId) IsEdge() bool   { return n.kind == KindEdge }
func (n NodeId) IsDevice() bool { return n.kind == KindDevice }
func (n NodeId) IsAny() bool    { return n.kind == KindAny }

// Compare implements the total ordering derived from variant order then
// payload bytes, as required by spec §3 (Cloud < Edge < Device < Any,
// then by the variant's payload).
func (n NodeId) Compare(other NodeId) int {
	if n.kind != other.kind {
		if n.kind < other.kind {
			return -1
		}
		return 1
	}
	switch n.kind {
	case KindEdge:
		switch {
		case n.edge < other.edge:
			return -1
		case n.edge > other.edge:
			return 1
		}
		return 0
	case KindDevice:
		for i := range n.device {
			if n.device[i] != other.device[i] {
				if n.device[i] < other.device[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	default:
		return 0
	}
}

func (n NodeId) Equal(other NodeId) bool { return n.Compare(other) == 0 }

func (n NodeId) String() string {
	switch n.kind {
	case KindCloud:
		return "cloud"
	case KindEdge:
		return fmt.Sprintf("edge(%d)", n.edge)
	case KindDevice:
		return fmt.Sprintf("device(%02x:%02x:%02x:%02x:%02x:%02x)",
			n.device[0], n.device[1], n.device[2], n.device[3], n.device[4], n.device[5])
	case KindAny:
		return "any"
	default:
		return "unknown"
	}
}
