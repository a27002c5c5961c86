// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package idgen provides the two UUID generators the fabric uses: a
// deterministic device-based generator for constrained nodes (no OS
// randomness required) and a standard random generator for the cloud
// tier, grounded on original_source/lumisync-embedded's
// protocol/uuid_generator.rs.
package idgen

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator mints message-correlation UUIDs. Both implementations below
// satisfy it, and in turn protocol.UuidGenerator structurally.
type Generator interface {
	Generate() uuid.UUID
	GenerateWithData(extra []byte) uuid.UUID
}

// RandomGenerator mints standard v4 UUIDs; used cloud-side where OS
// randomness is cheap and node identity need not be embedded.
type RandomGenerator struct{}

func NewRandomGenerator() RandomGenerator { return RandomGenerator{} }

func (RandomGenerator) Generate() uuid.UUID { return uuid.New() }

func (g RandomGenerator) GenerateWithData(extra []byte) uuid.UUID { return g.Generate() }

// DeviceBasedGenerator mints UUIDs with the device's BLE MAC embedded in
// the first 6 bytes and a monotonically increasing big-endian counter
// in the remaining bytes, so devices need no source of randomness and
// ids from distinct devices can never collide on the MAC prefix.
type DeviceBasedGenerator struct {
	prefix        [16]byte // MAC in [0:6], optional device id in [6:10]
	counterOffset int      // where the counter region starts: 6 (MAC-only) or 10 (with device id)
	counter       atomic.Uint64
}

// NewDeviceBasedGenerator implements spec §4.11: bytes 0..6 are the MAC,
// bytes 6..14 are the big-endian counter.
func NewDeviceBasedGenerator(mac [6]byte) *DeviceBasedGenerator {
	g := &DeviceBasedGenerator{counterOffset: 6}
	copy(g.prefix[0:6], mac[:])
	return g
}

// NewDeviceBasedGeneratorWithID is the richer original_source variant
// (SPEC_FULL.md "Supplemented features"): folds a 4-byte numeric device
// id into bytes 6..10, reserving that region from the counter so only
// bytes 10..16 (48 bits) are available for it on the wire representation
// produced by Generate/GenerateWithData.
func NewDeviceBasedGeneratorWithID(mac [6]byte, deviceID uint32) *DeviceBasedGenerator {
	g := &DeviceBasedGenerator{counterOffset: 10}
	copy(g.prefix[0:6], mac[:])
	g.prefix[6] = byte(deviceID >> 24)
	g.prefix[7] = byte(deviceID >> 16)
	g.prefix[8] = byte(deviceID >> 8)
	g.prefix[9] = byte(deviceID)
	return g
}

// Clone returns a new generator with the same MAC/device-id prefix and
// counter value, matching the original's manual Clone impl that copies
// the atomic counter's current value rather than resetting it.
func (g *DeviceBasedGenerator) Clone() *DeviceBasedGenerator {
	c := &DeviceBasedGenerator{prefix: g.prefix, counterOffset: g.counterOffset}
	c.counter.Store(g.counter.Load())
	return c
}

// Generate mints the next UUID: prefix unchanged, counter bytes filled
// in starting at counterOffset of a 16-byte buffer, so the with-ID
// constructor's device-id bytes at [6:10] are never overwritten (the
// default, MAC-only constructor's counterOffset of 6 still gets the
// full 8 counter bytes it always has).
func (g *DeviceBasedGenerator) Generate() uuid.UUID {
	counter := g.counter.Add(1) - 1
	var out [16]byte
	copy(out[:], g.prefix[:])
	var cb [8]byte
	cb[0] = byte(counter >> 56)
	cb[1] = byte(counter >> 48)
	cb[2] = byte(counter >> 40)
	cb[3] = byte(counter >> 32)
	cb[4] = byte(counter >> 24)
	cb[5] = byte(counter >> 16)
	cb[6] = byte(counter >> 8)
	cb[7] = byte(counter)
	n := 16 - g.counterOffset
	copy(out[g.counterOffset:], cb[8-n:])
	return uuid.UUID(out)
}

// GenerateWithData folds extra into the counter-derived suffix via
// acc = acc*31 + b (wrapping), seeded from the current counter value,
// matching the original's generate_with_data. Like Generate, it writes
// starting at counterOffset so it never clobbers a with-ID generator's
// reserved device-id bytes.
func (g *DeviceBasedGenerator) GenerateWithData(extra []byte) uuid.UUID {
	counter := g.counter.Add(1) - 1
	acc := counter
	for _, b := range extra {
		acc = acc*31 + uint64(b)
	}
	var out [16]byte
	copy(out[:], g.prefix[:])
	var hb [8]byte
	hb[0] = byte(acc >> 56)
	hb[1] = byte(acc >> 48)
	hb[2] = byte(acc >> 40)
	hb[3] = byte(acc >> 32)
	hb[4] = byte(acc >> 24)
	hb[5] = byte(acc >> 16)
	hb[6] = byte(acc >> 8)
	hb[7] = byte(acc)
	n := 16 - g.counterOffset
	copy(out[g.counterOffset:], hb[8-n:])
	return uuid.UUID(out)
}
