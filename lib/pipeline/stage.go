// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"errors"
	"sort"

	"github.com/sieluna/blindsfabric/lib/protocol"
)

// DefaultPriority is the priority a stage gets when it has no specific
// ordering requirement (spec §4.10: "priority (lower = earlier; default
// 100)").
const DefaultPriority = 100

// Stage is one unit of pipeline processing (spec §4.10).
type Stage interface {
	Name() string
	Priority() int
	ShouldExecute(msg protocol.Message, ctx *ProcessContext) bool
	Process(msg protocol.Message, ctx *ProcessContext) Verdict
}

// Recoverer is implemented by stages (the standard ErrorHandling stage)
// that get a chance to inspect and potentially recover from a prior
// stage's Error verdict instead of letting it propagate immediately.
// Ordinary stages are skipped once an error has been recorded (spec
// §4.9: "Error surfaces up immediately"); only a Recoverer stage that
// ShouldExecute's against the failed message is still invoked, mirroring
// how the spec singles out ErrorHandling as the stage that "catches
// prior Error verdicts".
type Recoverer interface {
	Stage
	Recover(msg protocol.Message, ctx *ProcessContext, cause error) Verdict
}

// Engine runs an ordered list of stages against one in-flight message
// (spec §4.10).
type Engine struct {
	stages []Stage
}

// NewEngine sorts stages by priority once (stable, so equal priorities
// keep registration order) and returns a ready-to-run Engine.
func NewEngine(stages ...Stage) *Engine {
	sorted := append([]Stage(nil), stages...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Engine{stages: sorted}
}

// Stages returns the engine's stages in execution order.
func (e *Engine) Stages() []Stage { return e.stages }

// Run processes msg through every stage in priority order. It returns
// the terminal response (nil if Skip or no stage completed) and the
// first error recorded, if any.
func (e *Engine) Run(msg protocol.Message, ctx *ProcessContext) (*protocol.Message, error) {
	cur := msg
	for _, stage := range e.stages {
		ctx.touch()

		if ctx.FirstError() != nil {
			rec, ok := stage.(Recoverer)
			if !ok {
				continue
			}
			if !rec.ShouldExecute(cur, ctx) {
				continue
			}
			v := rec.Recover(cur, ctx, ctx.FirstError())
			terminal, resp, err, recovered := e.applyRecoveryVerdict(v)
			if recovered {
				ctx.clearError()
				cur = v.Message
				continue
			}
			if terminal {
				return resp, err
			}
			continue
		}

		if !stage.ShouldExecute(cur, ctx) {
			continue
		}
		v := stage.Process(cur, ctx)
		ctx.Processed.Add(1)

		switch v.Kind {
		case VerdictContinue:
			cur = v.Message
		case VerdictComplete:
			if v.Response != nil {
				ctx.AddResponse(*v.Response)
			}
			return v.Response, nil
		case VerdictSkip:
			return nil, nil
		case VerdictError:
			ctx.recordError(v.Err)
		default:
			ctx.recordError(errors.New("pipeline: stage returned an unknown verdict kind"))
		}
	}

	if err := ctx.FirstError(); err != nil {
		return nil, err
	}
	return nil, nil
}

// applyRecoveryVerdict interprets a Recoverer's verdict: Continue means
// the error was recovered and the clean in-flight message should
// resume normal processing at the next stage; any other verdict is
// terminal for the pipeline, same as it would be from a regular stage.
func (e *Engine) applyRecoveryVerdict(v Verdict) (terminal bool, resp *protocol.Message, err error, recovered bool) {
	switch v.Kind {
	case VerdictContinue:
		return false, nil, nil, true
	case VerdictComplete:
		return true, v.Response, nil, false
	case VerdictSkip:
		return true, nil, nil, false
	case VerdictError:
		return true, nil, v.Err, false
	default:
		return true, nil, errors.New("pipeline: recoverer returned an unknown verdict kind"), false
	}
}
