// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package timesync

import (
	"testing"

	"github.com/sieluna/blindsfabric/lib/config"
)

// TestScenarioS3 matches spec §8 S3.
func TestScenarioS3(t *testing.T) {
	s := New(config.DefaultTimeSyncConfig())
	if s.Status().Kind != StatusUnsynced {
		t.Fatalf("initial status = %v, want Unsynced", s.Status().Kind)
	}

	if err := s.HandleSyncResponse(1000, 1150, 1100); err != nil {
		t.Fatalf("HandleSyncResponse: %v", err)
	}
	if s.Status().Kind != StatusSynced {
		t.Fatalf("status = %v, want Synced", s.Status().Kind)
	}
	if got := s.CurrentOffsetMs(); got != 100 {
		t.Fatalf("current offset = %d, want 100", got)
	}
	nt, err := s.UptimeToNetworkTime(2000)
	if err != nil {
		t.Fatalf("UptimeToNetworkTime: %v", err)
	}
	if nt != 2100 {
		t.Fatalf("network time = %d, want 2100", nt)
	}
}

// TestScenarioS4 continues S3 and matches spec §8 S4: a drift-gate
// rejection that leaves the synchronizer no longer Synced. The gate is
// |new_offset| > 2*max_drift_ms, so max_drift_ms is 100 here: the second
// sample's offset of 350 trips a 200 ms gate, while the default of 1000
// (a 2000 ms gate) would accept it.
func TestScenarioS4(t *testing.T) {
	cfg := config.DefaultTimeSyncConfig()
	cfg.MaxDriftMs = 100
	s := New(cfg)
	if err := s.HandleSyncResponse(1000, 1150, 1100); err != nil {
		t.Fatalf("first sample: %v", err)
	}

	err := s.HandleSyncResponse(2000, 2400, 2100)
	if err != ErrExcessiveDrift {
		t.Fatalf("err = %v, want ErrExcessiveDrift", err)
	}
	if s.Status().Kind == StatusSynced {
		t.Fatalf("status should no longer be Synced after excessive drift")
	}
}

// TestDriftGateFirstSampleBypassed is spec §8 property 6: the first
// ever sample bypasses the drift gate even with an enormous offset.
func TestDriftGateFirstSampleBypassed(t *testing.T) {
	cfg := config.DefaultTimeSyncConfig() // max_drift_ms = 1000
	s := New(cfg)

	// offset of 10*max_drift: request at uptime 0, response at network
	// time 10*max_drift_ms, symmetric rtt 0.
	err := s.HandleSyncResponse(0, 10*cfg.MaxDriftMs, 0)
	if err != nil {
		t.Fatalf("first sample should bypass drift gate, got %v", err)
	}
	if s.Status().Kind != StatusSynced {
		t.Fatalf("status = %v, want Synced", s.Status().Kind)
	}
}

func TestHighNetworkDelayTriggersFailure(t *testing.T) {
	cfg := config.DefaultTimeSyncConfig() // delay_threshold_ms = 100
	s := New(cfg)
	// rtt = 500 > 4*100
	err := s.HandleSyncResponse(1000, 2000, 1500)
	if err != ErrHighNetworkDelay {
		t.Fatalf("err = %v, want ErrHighNetworkDelay", err)
	}
	if s.RetryCount() != 1 {
		t.Fatalf("retry count = %d, want 1", s.RetryCount())
	}
}

// TestOffsetSmoothing is spec §8 property 5: the stored
// current_offset_ms after N samples equals the value produced by
// applying the 70/30 EWMA rule iteratively from the first sample.
func TestOffsetSmoothing(t *testing.T) {
	s := New(config.DefaultTimeSyncConfig())

	samples := []struct{ reqUptime, netTime, recvUptime uint64 }{
		{0, 100, 0},
		{1000, 1150, 1000},
		{2000, 2080, 2000},
		{3000, 3120, 3000},
	}

	var want int64
	first := true
	for _, sm := range samples {
		rtt := sm.recvUptime - sm.reqUptime
		estUptime := sm.reqUptime + rtt/2
		newOffset := int64(sm.netTime) - int64(estUptime)
		if first {
			want = newOffset
			first = false
		} else {
			want = (want*7 + newOffset*3) / 10
		}
		if err := s.HandleSyncResponse(sm.reqUptime, sm.netTime, sm.recvUptime); err != nil {
			t.Fatalf("HandleSyncResponse(%v): %v", sm, err)
		}
	}
	if got := s.CurrentOffsetMs(); got != want {
		t.Fatalf("current offset = %d, want %d", got, want)
	}
}

// TestCooldownAfterMaxRetries is spec §8 property 7.
func TestCooldownAfterMaxRetries(t *testing.T) {
	cfg := config.DefaultTimeSyncConfig()
	s := New(cfg)

	var now uint64 = 1000
	for i := 0; i < cfg.MaxRetryCount; i++ {
		s.HandleFailure(now)
		now += 10
	}
	st := s.Status()
	if st.Kind != StatusFailed {
		t.Fatalf("status = %v, want Failed", st.Kind)
	}
	wantCooldownEnd := now - 10 + cfg.FailureCooldownMs
	if st.CooldownEndMs != wantCooldownEnd {
		t.Fatalf("cooldown end = %d, want %d", st.CooldownEndMs, wantCooldownEnd)
	}
	if s.NeedsSync(st.CooldownEndMs - 1) {
		t.Fatal("needs_sync should be false during cooldown")
	}
	if !s.NeedsSync(st.CooldownEndMs) {
		t.Fatal("needs_sync should be true once cooldown has elapsed")
	}
}

func TestNeedsSyncNeverSynced(t *testing.T) {
	s := New(config.DefaultTimeSyncConfig())
	if !s.NeedsSync(0) {
		t.Fatal("a never-synced node should need sync")
	}
}

func TestNeedsSyncIntervalElapsed(t *testing.T) {
	cfg := config.DefaultTimeSyncConfig()
	s := New(cfg)
	if err := s.HandleSyncResponse(0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if s.NeedsSync(cfg.SyncIntervalMs) {
		t.Fatal("exactly at the interval boundary should not yet need sync (spec uses strict >)")
	}
	if !s.NeedsSync(cfg.SyncIntervalMs + 1) {
		t.Fatal("past the interval boundary should need sync")
	}
}

func TestUptimeToNetworkTimeFailsUnsynced(t *testing.T) {
	s := New(config.DefaultTimeSyncConfig())
	if _, err := s.UptimeToNetworkTime(1000); err != ErrNotSynchronized {
		t.Fatalf("err = %v, want ErrNotSynchronized", err)
	}
}

func TestNextRequestSequenceIncreases(t *testing.T) {
	s := New(config.DefaultTimeSyncConfig())
	a := s.NextRequestSequence()
	b := s.NextRequestSequence()
	if b != a+1 {
		t.Fatalf("sequence did not increase by one: %d -> %d", a, b)
	}
}
