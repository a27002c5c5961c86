// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config holds the small struct-plus-defaults configuration
// types shared across the fabric's components, adapted from the
// teacher's lib/config struct/Default-function pattern rather than a
// single monolithic global options object.
package config

import "time"

// TimeSyncConfig holds the tunables of the time synchronizer (spec
// §4.7). Field names and defaults follow the spec verbatim.
type TimeSyncConfig struct {
	SyncIntervalMs    uint64
	MaxDriftMs        uint64
	OffsetHistorySize int
	DelayThresholdMs  uint64
	MaxRetryCount     int
	FailureCooldownMs uint64
}

// DefaultTimeSyncConfig returns the spec §4.7 defaults.
func DefaultTimeSyncConfig() TimeSyncConfig {
	return TimeSyncConfig{
		SyncIntervalMs:    30_000,
		MaxDriftMs:        1_000,
		OffsetHistorySize: 5,
		DelayThresholdMs:  100,
		MaxRetryCount:     3,
		FailureCooldownMs: 60_000,
	}
}

// CoordinatorConfig holds the cloud-side time-sync coordinator's
// tunables (spec §4.8).
type CoordinatorConfig struct {
	DeviceBroadcastIntervalMs uint64
	// AuthorizedEdges lists the Edge ids allowed to request sync from
	// the cloud service; requests from any other source are rejected
	// Unauthorized (spec §4.8).
	AuthorizedEdges []uint8
}

func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{DeviceBroadcastIntervalMs: 60_000}
}

// PipelineConfig configures how a pipeline.Engine is assembled: which
// optional stages run and with what strictness, following the
// PerformanceProfile recommendation (SPEC_FULL.md supplemented feature,
// grounded on lumisync-embedded's handler/pipeline.rs).
type PipelineConfig struct {
	// CaptureLogBody enables the Logging stage's payload-body capture;
	// disabled by default since it is the most expensive optional
	// stage on a constrained device.
	CaptureLogBody bool
	// AllowList is consulted by the Authentication stage (spec §4.10);
	// a nil AllowList means "allow all" (development/dev-loopback use).
	AllowList []string
	// AutoRecoverTransient lets ErrorHandling retry transient error
	// kinds instead of propagating them immediately.
	AutoRecoverTransient bool
	// MaxRetryCount bounds how many times ErrorHandling will recover the
	// same in-flight message before giving up and propagating the error.
	MaxRetryCount int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{CaptureLogBody: false, AutoRecoverTransient: true, MaxRetryCount: 3}
}

// TCPDialOptions configures the Edge<->Cloud TCP raw transport (spec
// §6): default port 8080, with a dial timeout mirroring the teacher's
// connection-dial options.
type TCPDialOptions struct {
	Host           string
	Port           int
	DialTimeout    time.Duration
	LengthPrefixed bool // see spec §6 note: must be false when C3 framing already owns length-prefixing
}

func DefaultTCPDialOptions() TCPDialOptions {
	return TCPDialOptions{Host: "127.0.0.1", Port: 8080, DialTimeout: 10 * time.Second}
}

// BLEOptions configures the Edge<->Device BLE GATT bridge (spec §4.5/§6).
type BLEOptions struct {
	ServiceUUID        string
	CharacteristicUUID string
	MaxMTU             int
	ScanTimeout        time.Duration
}

func DefaultBLEOptions() BLEOptions {
	return BLEOptions{
		ServiceUUID:        "0000abcd-0000-1000-8000-00805f9b34fb",
		CharacteristicUUID: "0000abce-0000-1000-8000-00805f9b34fb",
		MaxMTU:             512,
		ScanTimeout:        10 * time.Second,
	}
}

// FramedTransportConfig configures C6 (spec §4.6): which wire encoding
// new messages are sent with, whether frames carry a trailing CRC, and
// the RX buffer's starting capacity. CompressThreshold enables optional
// LZ4 compression (SPEC_FULL.md DOMAIN STACK) for payloads at or above
// that many bytes, but only takes effect when CompressionVariant is also
// set -- spec §4.3 reserves FlagCompressed's bit and requires it be zero
// on the default wire format, so compression must be explicitly opted
// into per connection rather than default-on. Compression is always
// disabled for BLE transports regardless of either setting (see
// DESIGN.md).
type FramedTransportConfig struct {
	DefaultProtocol       uint8 // wireformat.Protocol, duplicated here to avoid an import cycle
	CRC                   bool
	InitialBufferCapacity int
	MaxMessageSize        uint32
	CompressionVariant    bool
	CompressThreshold     int
}

func DefaultFramedTransportConfig() FramedTransportConfig {
	return FramedTransportConfig{
		DefaultProtocol:       0, // wireformat.ProtocolPostcard
		CRC:                   true,
		InitialBufferCapacity: 4096,
		MaxMessageSize:        64 * 1024,
		CompressionVariant:    false,
		CompressThreshold:     1024,
	}
}

// CompressingFramedTransportConfig is DefaultFramedTransportConfig with
// the compression variant negotiated on; use it for a connection where
// both peers are known to understand FlagCompressed (never BLE).
func CompressingFramedTransportConfig() FramedTransportConfig {
	cfg := DefaultFramedTransportConfig()
	cfg.CompressionVariant = true
	return cfg
}

// AnalyzerConfig configures the edge analyzer (spec §4.12): the battery
// threshold below which the close-to-save-power rule fires, and how
// stale a device's last-known state may be before Hint refuses to guess.
type AnalyzerConfig struct {
	LowBatteryThreshold uint8
	StaleAfter          time.Duration
}

func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{LowBatteryThreshold: 20, StaleAfter: 10 * time.Minute}
}
