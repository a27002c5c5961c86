// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import "testing"

func TestParseMAC(t *testing.T) {
	mac, err := parseMAC("12:34:56:ab:cd:ef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [6]byte{0x12, 0x34, 0x56, 0xab, 0xcd, 0xef}
	if mac != want {
		t.Fatalf("got %x, want %x", mac, want)
	}
}

func TestParseMACRejectsWrongSegmentCount(t *testing.T) {
	if _, err := parseMAC("12:34:56"); err == nil {
		t.Fatal("expected error for short MAC")
	}
}

func TestParseMACRejectsBadHex(t *testing.T) {
	if _, err := parseMAC("zz:34:56:ab:cd:ef"); err == nil {
		t.Fatal("expected error for invalid hex byte")
	}
}

func TestParseMACListEmpty(t *testing.T) {
	macs, err := parseMACList("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if macs != nil {
		t.Fatalf("expected nil, got %v", macs)
	}
}

func TestParseMACListMultiple(t *testing.T) {
	macs, err := parseMACList("12:34:56:00:00:01, 12:34:56:00:00:02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(macs) != 2 {
		t.Fatalf("expected 2 macs, got %d", len(macs))
	}
	if macs[0] != [6]byte{0x12, 0x34, 0x56, 0, 0, 1} {
		t.Fatalf("unexpected first mac: %x", macs[0])
	}
	if macs[1] != [6]byte{0x12, 0x34, 0x56, 0, 0, 2} {
		t.Fatalf("unexpected second mac: %x", macs[1])
	}
}

func TestDeviceIDFromMACInvertsDeviceIDToMAC(t *testing.T) {
	mac := [6]byte{0x12, 0x34, 0x56, 0x00, 0x01, 0x02}
	id := deviceIDFromMAC(mac)
	if id != 0x000102 {
		t.Fatalf("got device id %#x, want 0x102", uint32(id))
	}
}

func TestDeviceRegistryRegisterLookupForget(t *testing.T) {
	reg := newDeviceRegistry()
	if _, ok := reg.lookup(1); ok {
		t.Fatal("expected no entry before register")
	}
	reg.register(1, nil)
	if _, ok := reg.lookup(1); !ok {
		t.Fatal("expected entry after register")
	}
	reg.forget(1)
	if _, ok := reg.lookup(1); ok {
		t.Fatal("expected no entry after forget")
	}
}
