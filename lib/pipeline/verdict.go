// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import "github.com/sieluna/blindsfabric/lib/protocol"

// VerdictKind tags the Verdict sum type a stage returns (spec §4.10).
type VerdictKind uint8

const (
	VerdictContinue VerdictKind = iota
	VerdictComplete
	VerdictSkip
	VerdictError
)

// Verdict is what Stage.Process returns: Continue replaces the
// in-flight message and advances to the next stage; Complete
// terminates the pipeline with an optional response; Skip terminates
// successfully with no response; Error terminates with failure.
type Verdict struct {
	Kind     VerdictKind
	Message  protocol.Message  // valid when Kind == VerdictContinue
	Response *protocol.Message // valid (possibly nil) when Kind == VerdictComplete
	Err      error             // valid when Kind == VerdictError
}

// Continue advances the pipeline with msg as the new in-flight message.
func Continue(msg protocol.Message) Verdict {
	return Verdict{Kind: VerdictContinue, Message: msg}
}

// Complete terminates the pipeline successfully with response (nil for
// no response).
func Complete(response *protocol.Message) Verdict {
	return Verdict{Kind: VerdictComplete, Response: response}
}

// Skip terminates the pipeline successfully with no response.
func Skip() Verdict { return Verdict{Kind: VerdictSkip} }

// Err terminates the pipeline with failure.
func Err(err error) Verdict { return Verdict{Kind: VerdictError, Err: err} }
