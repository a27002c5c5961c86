// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package idgen

import "testing"

func TestDeviceBasedMACEmbedding(t *testing.T) {
	mac := [6]byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}
	g := NewDeviceBasedGenerator(mac)
	id := g.Generate()
	for i, b := range mac {
		if id[i] != b {
			t.Fatalf("byte %d = %#x, want %#x (mac)", i, id[i], b)
		}
	}
}

func TestDeviceBasedCounterIncreases(t *testing.T) {
	g := NewDeviceBasedGenerator([6]byte{1, 2, 3, 4, 5, 6})
	first := g.Generate()
	second := g.Generate()

	firstCounter := beUint64(first[6:14])
	secondCounter := beUint64(second[6:14])
	if secondCounter != firstCounter+1 {
		t.Fatalf("counter did not increase by one: %d -> %d", firstCounter, secondCounter)
	}
}

func TestGenerateUniqueUUIDs(t *testing.T) {
	g := NewDeviceBasedGenerator([6]byte{1, 2, 3, 4, 5, 6})
	seen := make(map[[16]byte]bool)
	for i := 0; i < 1000; i++ {
		id := g.Generate()
		if seen[id] {
			t.Fatalf("duplicate uuid generated at iteration %d", i)
		}
		seen[id] = true
	}
}

func TestGenerateWithDataSameDataDiffers(t *testing.T) {
	g := NewDeviceBasedGenerator([6]byte{1, 2, 3, 4, 5, 6})
	a := g.GenerateWithData([]byte("payload"))
	b := g.GenerateWithData([]byte("payload"))
	if a == b {
		t.Fatal("two calls with identical extra data produced identical uuids (counter should differentiate them)")
	}
}

func TestGenerateWithDataDifferentData(t *testing.T) {
	g1 := NewDeviceBasedGenerator([6]byte{1, 2, 3, 4, 5, 6})
	g2 := g1.Clone()

	a := g1.GenerateWithData([]byte("payload-a"))
	b := g2.GenerateWithData([]byte("payload-b"))
	if a == b {
		t.Fatal("different extra data produced identical uuids from clones sharing a counter value")
	}
}

func TestCloneResetsNothing(t *testing.T) {
	g := NewDeviceBasedGenerator([6]byte{1, 2, 3, 4, 5, 6})
	g.Generate()
	g.Generate()
	clone := g.Clone()
	if clone.counter.Load() != g.counter.Load() {
		t.Fatalf("clone counter = %d, want %d", clone.counter.Load(), g.counter.Load())
	}
}

func TestDeviceBasedWithIDPreservesDeviceIDBytes(t *testing.T) {
	mac := [6]byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}
	g := NewDeviceBasedGeneratorWithID(mac, 0xDEADBEEF)

	for i := 0; i < 3; i++ {
		id := g.Generate()
		gotID := uint32(id[6])<<24 | uint32(id[7])<<16 | uint32(id[8])<<8 | uint32(id[9])
		if gotID != 0xDEADBEEF {
			t.Fatalf("iteration %d: device id bytes = %#x, want 0xDEADBEEF (clobbered by counter)", i, gotID)
		}
	}

	id := g.GenerateWithData([]byte("payload"))
	gotID := uint32(id[6])<<24 | uint32(id[7])<<16 | uint32(id[8])<<8 | uint32(id[9])
	if gotID != 0xDEADBEEF {
		t.Fatalf("GenerateWithData: device id bytes = %#x, want 0xDEADBEEF (clobbered by counter)", gotID)
	}
}

func TestRandomGeneratorProducesDistinctIDs(t *testing.T) {
	r := NewRandomGenerator()
	a := r.Generate()
	b := r.Generate()
	if a == b {
		t.Fatal("random generator produced identical uuids")
	}
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
