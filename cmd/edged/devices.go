// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sieluna/blindsfabric/lib/framedtransport"
	"github.com/sieluna/blindsfabric/lib/protocol"
)

// deviceRegistry tracks the live BLE bridge connection for each actuator
// currently attached to this edge, so a CloudCommand::ControlDevices
// entry can be relayed to the right device without reopening a link.
type deviceRegistry struct {
	byID *xsync.MapOf[protocol.DeviceId, *framedtransport.FramedTransport]
}

func newDeviceRegistry() *deviceRegistry {
	return &deviceRegistry{byID: xsync.NewMapOf[protocol.DeviceId, *framedtransport.FramedTransport]()}
}

func (r *deviceRegistry) register(id protocol.DeviceId, ft *framedtransport.FramedTransport) {
	r.byID.Store(id, ft)
}

func (r *deviceRegistry) lookup(id protocol.DeviceId) (*framedtransport.FramedTransport, bool) {
	return r.byID.Load(id)
}

func (r *deviceRegistry) forget(id protocol.DeviceId) {
	r.byID.Delete(id)
}

// deviceIDFromMAC derives the DeviceId an attached actuator will use, by
// inverting the reference placeholder mapping in protocol.DeviceIDToMAC
// (spec §9 Open Questions). An edge dials its devices by MAC (from
// -devices), so it can compute the id without waiting for a first
// report.
func deviceIDFromMAC(mac [6]byte) protocol.DeviceId {
	return protocol.DeviceId(uint32(mac[3])<<16 | uint32(mac[4])<<8 | uint32(mac[5]))
}

// parseMACList parses a comma-separated list of colon-hex BLE MACs, e.g.
// "12:34:56:00:00:01,12:34:56:00:00:02".
func parseMACList(s string) ([][6]byte, error) {
	if s == "" {
		return nil, nil
	}
	var out [][6]byte
	for _, part := range strings.Split(s, ",") {
		mac, err := parseMAC(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, mac)
	}
	return out, nil
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	segs := strings.Split(s, ":")
	if len(segs) != 6 {
		return mac, fmt.Errorf("invalid MAC %q: expected 6 colon-separated hex bytes", s)
	}
	for i, seg := range segs {
		n, err := strconv.ParseUint(seg, 16, 8)
		if err != nil {
			return mac, fmt.Errorf("invalid MAC %q: %w", s, err)
		}
		mac[i] = byte(n)
	}
	return mac, nil
}
