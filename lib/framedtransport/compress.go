// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package framedtransport

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// compress LZ4-block-compresses src, prefixing the result with src's
// uncompressed length (big-endian u32) so decompress knows how large a
// destination buffer to allocate; pierrec/lz4's block API has no
// self-describing length the way its frame API does.
func compress(src []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(src)))
	binary.BigEndian.PutUint32(dst[:4], uint32(len(src)))

	var ht [1 << 16]int
	n, err := lz4.CompressBlock(src, dst[4:], ht[:])
	if err != nil {
		return nil, fmt.Errorf("framedtransport: lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible input per pierrec/lz4's contract; fall back to
		// storing it uncompressed by signalling length 0 in the prefix,
		// which decompress recognises as "no compression applied".
		binary.BigEndian.PutUint32(dst[:4], 0)
		return append(dst[:4], src...), nil
	}
	return dst[:4+n], nil
}

// decompress reverses compress. A zero length prefix means src was
// stored uncompressed (see compress's incompressible-input fallback).
func decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("framedtransport: compressed payload too short")
	}
	n := binary.BigEndian.Uint32(src[:4])
	if n == 0 {
		return src[4:], nil
	}
	dst := make([]byte, n)
	written, err := lz4.UncompressBlock(src[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("framedtransport: lz4 decompress: %w", err)
	}
	return dst[:written], nil
}
