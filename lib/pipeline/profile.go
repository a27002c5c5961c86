// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"time"

	"github.com/sieluna/blindsfabric/lib/config"
)

// PerformanceProfile selects a pre-built stage list trading validation
// thoroughness for per-message cost, a supplemented feature recovered
// from lumisync-embedded's handler/pipeline.rs PerformanceProfile enum
// (not present in the distilled spec, but a natural fit for a system
// that runs the same engine on both a constrained edge device and an
// unconstrained cloud node).
type PerformanceProfile uint8

const (
	// ProfileMinimal skips Authentication and Logging; used on an edge
	// aggregator talking to devices it already trusts over BLE.
	ProfileMinimal PerformanceProfile = iota
	// ProfileBalanced runs Logging (payload body captured only when
	// cfg.CaptureLogBody is set), Validation, Authentication and
	// ErrorHandling; the default for edge<->cloud.
	ProfileBalanced
	// ProfileThorough runs every stage with full log body capture; used
	// for debugging or a freshly provisioned edge node.
	ProfileThorough
)

// RecommendedProfile builds the Engine spec §4.10 describes for the
// given profile, wiring cfg's allow-list and retry tunables into the
// concrete stages.
func RecommendedProfile(profile PerformanceProfile, cfg config.PipelineConfig) *Engine {
	switch profile {
	case ProfileMinimal:
		return NewEngine(
			NewValidationStage(10),
			NewErrorHandlingStage(90, cfg.AutoRecoverTransient, cfg.MaxRetryCount),
		)
	case ProfileThorough:
		return NewEngine(
			NewLoggingStage(10, true),
			NewValidationStage(20),
			NewAuthenticationStage(30, cfg.AllowList),
			NewErrorHandlingStage(90, cfg.AutoRecoverTransient, cfg.MaxRetryCount),
		)
	default: // ProfileBalanced
		return NewEngine(
			NewLoggingStage(10, cfg.CaptureLogBody),
			NewValidationStage(20),
			NewAuthenticationStage(30, cfg.AllowList),
			NewErrorHandlingStage(90, cfg.AutoRecoverTransient, cfg.MaxRetryCount),
		)
	}
}

// HealthStatus summarizes a ProcessContext's running counters for
// monitoring, a supplemented feature with no spec counterpart, grounded
// on the teacher's lib/connections health-snapshot pattern (small
// struct of counters read off atomics without locking the hot path).
type HealthStatus struct {
	Processed    uint64
	Sent         uint64
	Errors       uint64
	ErrorRate    float64
	IdleDuration time.Duration
	Healthy      bool
}

// CheckPipelineHealth reports the engine-run health for ctx, flagging
// unhealthy once the error rate crosses 50% (after at least one
// message) or the context has been idle past maxIdle.
func CheckPipelineHealth(ctx *ProcessContext, maxIdle time.Duration) HealthStatus {
	processed := ctx.Processed.Load()
	sent := ctx.Sent.Load()
	errs := ctx.Errors.Load()
	idle := time.Since(time.UnixMilli(ctx.LastActivity.Load()))

	var rate float64
	if processed > 0 {
		rate = float64(errs) / float64(processed)
	}
	healthy := rate < 0.5 && idle <= maxIdle

	return HealthStatus{
		Processed:    processed,
		Sent:         sent,
		Errors:       errs,
		ErrorRate:    rate,
		IdleDuration: idle,
		Healthy:      healthy,
	}
}
