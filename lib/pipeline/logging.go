// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"github.com/sieluna/blindsfabric/lib/logger"
	"github.com/sieluna/blindsfabric/lib/protocol"
)

var logFacility = logger.DefaultLogger.NewFacility("pipeline", "message pipeline processing")

// LoggingStage records every message that reaches it, matching spec
// §4.10's Logging stage. CaptureBody additionally logs the payload
// kind's field values via %+v, which is expensive enough on a
// constrained device to keep opt-in (config.PipelineConfig.CaptureLogBody).
type LoggingStage struct {
	priority    int
	captureBody bool
}

func NewLoggingStage(priority int, captureBody bool) *LoggingStage {
	return &LoggingStage{priority: priority, captureBody: captureBody}
}

func (s *LoggingStage) Name() string  { return "logging" }
func (s *LoggingStage) Priority() int { return s.priority }
func (s *LoggingStage) ShouldExecute(protocol.Message, *ProcessContext) bool { return true }

func (s *LoggingStage) Process(msg protocol.Message, ctx *ProcessContext) Verdict {
	if s.captureBody {
		logFacility.Debugf("%s -> %s [%s] %+v", msg.Header.Source, msg.Header.Target, msg.Payload.Kind(), msg.Payload)
	} else {
		logFacility.Debugf("%s -> %s [%s]", msg.Header.Source, msg.Header.Target, msg.Payload.Kind())
	}
	return Continue(msg)
}
