// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package crc32checksum provides the frame-integrity checksum used by
// lib/framing. It is a thin streaming wrapper over the standard
// library's hash/crc32 (IEEE polynomial 0xEDB88320) rather than a
// hand-rolled implementation -- the two are bit-for-bit identical and
// reimplementing a well-tested CRC table walk in the teacher's idiom
// would only add a place for an off-by-one to hide. See DESIGN.md for
// the full justification of this one stdlib-only component.
package crc32checksum

import "hash/crc32"

// Checksum computes the IEEE CRC-32 of data in one call.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Streaming accumulates a CRC-32 across multiple Update calls, mirroring
// the init/update/finalize contract the original Rust transport crate
// exposes for computing a frame's checksum as payload bytes arrive
// incrementally off the wire.
type Streaming struct {
	crc uint32
}

// NewStreaming returns a Streaming accumulator ready for Update calls.
func NewStreaming() *Streaming {
	return &Streaming{}
}

// Update folds data into the running checksum and returns the receiver
// for chaining.
func (s *Streaming) Update(data []byte) *Streaming {
	s.crc = crc32.Update(s.crc, crc32.IEEETable, data)
	return s
}

// Finalize returns the accumulated CRC-32 value.
func (s *Streaming) Finalize() uint32 {
	return s.crc
}

// Reset zeroes the accumulator so the Streaming value can be reused.
func (s *Streaming) Reset() {
	s.crc = 0
}
