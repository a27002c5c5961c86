// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"github.com/sieluna/blindsfabric/lib/protocol"
)

// retryState is the per-run extension ErrorHandlingStage uses to bound
// how many times it will recover the same message (spec §7's Timeout
// kind: "Increment retry; enter cooldown after max_retry_count").
type retryState struct {
	attempts int
}

// ErrorHandlingStage is the only stage that still runs after another
// stage records an Error verdict (see Recoverer). When the cause is
// marked transient (MarkTransient) and auto-recovery is enabled, it
// lets the message continue up to maxRetryCount times; otherwise, or
// once retries are exhausted, it replies with an Error payload and
// terminates the pipeline.
type ErrorHandlingStage struct {
	priority             int
	autoRecoverTransient bool
	maxRetryCount        int
}

func NewErrorHandlingStage(priority int, autoRecoverTransient bool, maxRetryCount int) *ErrorHandlingStage {
	return &ErrorHandlingStage{priority: priority, autoRecoverTransient: autoRecoverTransient, maxRetryCount: maxRetryCount}
}

func (s *ErrorHandlingStage) Name() string  { return "error_handling" }
func (s *ErrorHandlingStage) Priority() int { return s.priority }

func (s *ErrorHandlingStage) ShouldExecute(protocol.Message, *ProcessContext) bool { return true }

// Process is a no-op pass-through: this stage only does work through
// Recover, once a prior stage has already recorded an error.
func (s *ErrorHandlingStage) Process(msg protocol.Message, ctx *ProcessContext) Verdict {
	return Continue(msg)
}

// Recover implements Recoverer.
func (s *ErrorHandlingStage) Recover(msg protocol.Message, ctx *ProcessContext, cause error) Verdict {
	if s.autoRecoverTransient && IsTransient(cause) {
		state, _ := GetExtension[retryState](ctx)
		state.attempts++
		SetExtension(ctx, state)
		if state.attempts <= s.maxRetryCount {
			return Continue(msg)
		}
	}
	return s.terminalErrorReply(ctx, cause)
}

func (s *ErrorHandlingStage) terminalErrorReply(ctx *ProcessContext, cause error) Verdict {
	code := protocol.ErrCodeInternalError
	switch cause.(type) {
	case *InvalidMessageError:
		code = protocol.ErrCodeInvalidRequest
	case *UnauthorizedError:
		code = protocol.ErrCodePermissionDenied
	}
	if ctx.Builder == nil {
		return Err(cause)
	}
	reply := ctx.Builder.ErrorReply(ctx.Target, ctx.Source, nil, code, cause.Error())
	return Complete(&reply)
}
