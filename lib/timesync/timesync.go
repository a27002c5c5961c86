// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package timesync implements the per-node time-sync estimator (spec
// §4.7): a bounded offset-sample history, a 70/30 EWMA smoother, and the
// Unsynced/Synced/Failed state machine with drift and delay guards.
// Grounded on original_source/lumisync-embedded's
// protocol/time_sync.rs offset estimator, carried into the teacher's
// idiom of small, independently lockable service structs (cf.
// lib/model's per-folder runner state in the teacher project).
package timesync

import (
	"errors"
	"sync"

	"github.com/sieluna/blindsfabric/lib/config"
)

// Sentinel errors for the spec §7 sync-failure taxonomy.
var (
	ErrHighNetworkDelay = errors.New("timesync: round-trip time exceeded delay threshold")
	ErrExcessiveDrift   = errors.New("timesync: offset sample exceeds drift gate")
	ErrNotSynchronized  = errors.New("timesync: node has no valid network time estimate")
)

// StatusKind tags the SyncStatus sum type (spec §3).
type StatusKind uint8

const (
	StatusUnsynced StatusKind = iota
	StatusSynced
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusSynced:
		return "synced"
	case StatusFailed:
		return "failed"
	default:
		return "unsynced"
	}
}

// Status is the synchronizer's current SyncStatus; CooldownEndMs is
// only meaningful when Kind == StatusFailed.
type Status struct {
	Kind          StatusKind
	CooldownEndMs uint64
}

// Offset is one accepted TimeOffset sample (spec §3), held in the
// bounded FIFO history.
type Offset struct {
	LocalUptimeMs uint64
	NetworkTimeMs uint64
	NetworkDelayMs uint64
}

// Synchronizer is the per-node offset estimator described in spec §4.7.
// Safe for concurrent use: the cloud tier is expected to guard access
// per-NodeId via the coordinator's registry (spec §5), but reads
// (StatusQuery) must not block a concurrent response update, so the
// synchronizer itself carries its own RWMutex rather than trusting
// every caller to serialize externally.
type Synchronizer struct {
	cfg config.TimeSyncConfig

	mu               sync.RWMutex
	status           Status
	history          []Offset
	lastSyncUptimeMs uint64
	haveSynced       bool
	currentOffsetMs  int64
	retryCount       int

	nextSeq uint32
}

// New returns a Synchronizer starting Unsynced, per spec §4.7.
func New(cfg config.TimeSyncConfig) *Synchronizer {
	if cfg.OffsetHistorySize <= 0 {
		cfg.OffsetHistorySize = config.DefaultTimeSyncConfig().OffsetHistorySize
	}
	return &Synchronizer{cfg: cfg, status: Status{Kind: StatusUnsynced}}
}

// NextRequestSequence returns the next TimeSync::Request sequence
// number for this synchronizer's request/response correlation (spec
// §5: "Response-to-request matching uses the Request.sequence echoed
// in Response.request_seq").
func (s *Synchronizer) NextRequestSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	return s.nextSeq
}

// Status returns a snapshot of the current SyncStatus.
func (s *Synchronizer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CurrentOffsetMs returns the smoothed offset last computed by a
// successful HandleSyncResponse.
func (s *Synchronizer) CurrentOffsetMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentOffsetMs
}

// RetryCount returns the number of consecutive failures since the last
// successful sync.
func (s *Synchronizer) RetryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryCount
}

// LastAccuracyMs reports the half-RTT network delay of the most
// recently accepted sample, used as this synchronizer's accuracy
// estimate in TimeSync::StatusResponse and NetworkStatus reporting.
func (s *Synchronizer) LastAccuracyMs() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return 0
	}
	return uint32(s.history[len(s.history)-1].NetworkDelayMs)
}

// transitionCooldown applies the Failed{cooldown_end} -> Unsynced edge
// of the state machine (spec §4.7) once now has reached the cooldown
// deadline. Caller must hold s.mu (write lock).
func (s *Synchronizer) transitionCooldownLocked(nowUptimeMs uint64) {
	if s.status.Kind == StatusFailed && nowUptimeMs >= s.status.CooldownEndMs {
		s.status = Status{Kind: StatusUnsynced}
	}
}

// NeedsSync reports whether the synchronizer should issue a new
// TimeSync::Request at nowUptimeMs (spec §4.7): false during an active
// cooldown, true if never synced, true if the sync interval has
// elapsed since the last accepted response.
func (s *Synchronizer) NeedsSync(nowUptimeMs uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionCooldownLocked(nowUptimeMs)
	if s.status.Kind == StatusFailed {
		return false
	}
	if !s.haveSynced {
		return true
	}
	return nowUptimeMs-s.lastSyncUptimeMs > s.cfg.SyncIntervalMs
}

// UptimeToNetworkTime converts a local uptime into an estimated network
// time using the current smoothed offset (spec §4.7). Fails
// ErrNotSynchronized unless status is Synced.
func (s *Synchronizer) UptimeToNetworkTime(uptimeMs uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status.Kind != StatusSynced {
		return 0, ErrNotSynchronized
	}
	v := int64(uptimeMs) + s.currentOffsetMs
	if v < 0 {
		v = 0
	}
	return uint64(v), nil
}

// absInt64 returns the absolute value of a signed 64-bit integer.
func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// HandleSyncResponse runs the 8-step response-handling algorithm of
// spec §4.7 given the local uptime the request was sent at, the
// network time echoed back by the server, and the local uptime the
// response was received at. On success it updates status, history, and
// the smoothed current offset. On failure it delegates to
// HandleFailure and returns the corresponding sentinel error.
func (s *Synchronizer) HandleSyncResponse(requestUptimeMs, responseNetworkTimeMs, receiveUptimeMs uint64) error {
	var rtt uint64
	if receiveUptimeMs > requestUptimeMs {
		rtt = receiveUptimeMs - requestUptimeMs
	}

	if rtt > 4*s.cfg.DelayThresholdMs {
		s.HandleFailure(receiveUptimeMs)
		return ErrHighNetworkDelay
	}

	estimatedResponseUptime := requestUptimeMs + rtt/2
	newOffset := int64(responseNetworkTimeMs) - int64(estimatedResponseUptime)

	s.mu.Lock()
	historyNonEmpty := len(s.history) > 0
	s.mu.Unlock()

	if historyNonEmpty && absInt64(newOffset) > 2*int64(s.cfg.MaxDriftMs) {
		s.HandleFailure(receiveUptimeMs)
		return ErrExcessiveDrift
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sample := Offset{
		LocalUptimeMs:  estimatedResponseUptime,
		NetworkTimeMs:  responseNetworkTimeMs,
		NetworkDelayMs: rtt / 2,
	}
	if len(s.history) >= s.cfg.OffsetHistorySize {
		s.history = append(s.history[1:], sample)
	} else {
		s.history = append(s.history, sample)
	}

	if len(s.history) == 1 {
		s.currentOffsetMs = newOffset
	} else {
		s.currentOffsetMs = (s.currentOffsetMs*7 + newOffset*3) / 10
	}

	s.status = Status{Kind: StatusSynced}
	s.lastSyncUptimeMs = receiveUptimeMs
	s.haveSynced = true
	s.retryCount = 0
	return nil
}

// HandleFailure records a failed sync attempt at nowUptimeMs. Once
// RetryCount reaches cfg.MaxRetryCount consecutive failures, status
// becomes Failed with a cooldown ending failure_cooldown_ms later;
// otherwise status reverts to Unsynced so the scheduler retries on its
// next NeedsSync check (spec §4.7 state diagram).
func (s *Synchronizer) HandleFailure(nowUptimeMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount++
	if s.retryCount >= s.cfg.MaxRetryCount {
		s.status = Status{Kind: StatusFailed, CooldownEndMs: nowUptimeMs + s.cfg.FailureCooldownMs}
		return
	}
	s.status = Status{Kind: StatusUnsynced}
}
