// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package crc32checksum

import "testing"

func TestChecksumVectors(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint32
	}{
		{[]byte(""), 0x00000000},
		{[]byte("a"), 0xe8b7be43},
		{[]byte("abc"), 0x352441c2},
		{[]byte("message digest"), 0x20159d7f},
		{[]byte("abcdefghijklmnopqrstuvwxyz"), 0x4c2750bd},
		{[]byte{0}, 0xd202ef8d},
		{[]byte{255}, 0xff000000},
	}
	for _, c := range cases {
		if got := Checksum(c.in); got != c.want {
			t.Errorf("Checksum(%q) = %#x, want %#x", c.in, got, c.want)
		}
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	want := Checksum(data)

	s := NewStreaming()
	s.Update(data[:10]).Update(data[10:20]).Update(data[20:])
	if got := s.Finalize(); got != want {
		t.Errorf("streaming checksum = %#x, want %#x", got, want)
	}
}

func TestStreamingReset(t *testing.T) {
	s := NewStreaming()
	s.Update([]byte("a"))
	s.Reset()
	s.Update([]byte("abc"))
	if got := s.Finalize(); got != Checksum([]byte("abc")) {
		t.Errorf("reset streaming checksum = %#x, want %#x", got, Checksum([]byte("abc")))
	}
}
