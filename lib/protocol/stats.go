// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import "sync/atomic"

// DeviceStatistics is a supplemented feature recovered from
// lumisync-embedded's DeviceCommunicator (src/message/device/mod.rs):
// lightweight counters a device-side communicator keeps about its own
// operation, reported on demand rather than per-message.
type DeviceStatistics struct {
	TotalMoves          uint64
	TotalErrors         uint64
	EmergencyStopCount  uint64
	UptimeMs            uint64
}

// DeviceCounters is the atomic, concurrency-safe holder a device
// communicator embeds; Snapshot produces the immutable DeviceStatistics
// view handed to callers.
type DeviceCounters struct {
	totalMoves         atomic.Uint64
	totalErrors        atomic.Uint64
	emergencyStopCount atomic.Uint64
	startUptimeMs      uint64
}

func NewDeviceCounters(startUptimeMs uint64) *DeviceCounters {
	return &DeviceCounters{startUptimeMs: startUptimeMs}
}

func (c *DeviceCounters) RecordMove()          { c.totalMoves.Add(1) }
func (c *DeviceCounters) RecordError()         { c.totalErrors.Add(1) }
func (c *DeviceCounters) RecordEmergencyStop()  { c.emergencyStopCount.Add(1) }

func (c *DeviceCounters) Snapshot(nowUptimeMs uint64) DeviceStatistics {
	uptime := uint64(0)
	if nowUptimeMs > c.startUptimeMs {
		uptime = nowUptimeMs - c.startUptimeMs
	}
	return DeviceStatistics{
		TotalMoves:         c.totalMoves.Load(),
		TotalErrors:        c.totalErrors.Load(),
		EmergencyStopCount: c.emergencyStopCount.Load(),
		UptimeMs:           uptime,
	}
}
