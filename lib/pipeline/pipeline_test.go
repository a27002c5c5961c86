// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"errors"
	"testing"

	"github.com/sieluna/blindsfabric/lib/idgen"
	"github.com/sieluna/blindsfabric/lib/protocol"
)

func newBuilder() *protocol.MessageBuilder {
	return protocol.NewMessageBuilder(idgen.NewRandomGenerator(), nil)
}

// TestScenarioS5 matches spec §8 S5: [Logging(10), Validation(20),
// Auth(30)] processing a CloudCommand sourced from a Device(_) yields
// an Error verdict from Validation and Auth is never invoked.
func TestScenarioS5(t *testing.T) {
	authCalled := false
	probe := &probeStage{priority: 30, onProcess: func(protocol.Message, *ProcessContext) Verdict {
		authCalled = true
		return Continue(protocol.Message{})
	}}

	engine := NewEngine(
		NewLoggingStage(10, false),
		NewValidationStage(20),
		probe,
	)

	builder := newBuilder()
	badSource := protocol.Message{
		Header: protocol.MessageHeader{
			ID:     builder.Gen.Generate(),
			Source: protocol.NewDevice([6]byte{1, 2, 3, 4, 5, 6}),
			Target: protocol.NewCloud(),
		},
		Payload: protocol.CloudCommand{Kind: protocol.CloudConfigureWindow},
	}

	ctx := NewProcessContext(badSource.Header.Source, badSource.Header.Target, nil, builder)
	_, err := engine.Run(badSource, ctx)
	if err == nil {
		t.Fatal("expected an error from Validation, got nil")
	}
	var invalid *InvalidMessageError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidMessageError, got %T: %v", err, err)
	}
	if authCalled {
		t.Fatal("Auth stage was invoked after a Validation error; it must be skipped")
	}
}

// TestPipelineShortCircuitOnComplete matches spec §8 testable property
// 8: stages [A, B, C] where B returns Complete(r) never invoke C.
func TestPipelineShortCircuitOnComplete(t *testing.T) {
	var cCalled bool
	reply := protocol.Message{Payload: protocol.Acknowledge{Status: protocol.AckOK}}

	a := &probeStage{priority: 10, onProcess: func(msg protocol.Message, _ *ProcessContext) Verdict {
		return Continue(msg)
	}}
	b := &probeStage{priority: 20, onProcess: func(protocol.Message, *ProcessContext) Verdict {
		return Complete(&reply)
	}}
	c := &probeStage{priority: 30, onProcess: func(msg protocol.Message, _ *ProcessContext) Verdict {
		cCalled = true
		return Continue(msg)
	}}

	engine := NewEngine(a, b, c)
	builder := newBuilder()
	msg := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewCloud(), Target: protocol.NewEdge(1)},
		Payload: protocol.CloudCommand{Kind: protocol.CloudConfigureWindow},
	}
	ctx := NewProcessContext(msg.Header.Source, msg.Header.Target, nil, builder)

	resp, err := engine.Run(msg, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || resp.Payload.Kind() != protocol.PayloadAcknowledge {
		t.Fatalf("expected the Acknowledge reply from B, got %+v", resp)
	}
	if cCalled {
		t.Fatal("C was invoked after B returned Complete")
	}
}

// TestErrorHandlingRecoversTransientThenContinues checks that a
// transient error caught by ErrorHandling lets the rest of the
// pipeline run to completion instead of terminating the run.
func TestErrorHandlingRecoversTransientThenContinues(t *testing.T) {
	flaky := &probeStage{priority: 20, onProcess: func(protocol.Message, *ProcessContext) Verdict {
		return Err(MarkTransient(errors.New("timeout talking to device")))
	}}
	reply := protocol.Message{Payload: protocol.Acknowledge{Status: protocol.AckOK}}
	final := &probeStage{priority: 90, onProcess: func(protocol.Message, *ProcessContext) Verdict {
		return Complete(&reply)
	}}

	engine := NewEngine(flaky, NewErrorHandlingStage(50, true, 2), final)
	builder := newBuilder()
	msg := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
		Payload: protocol.EdgeReport{VariantKind: protocol.EdgeReportHealth},
	}
	ctx := NewProcessContext(msg.Header.Source, msg.Header.Target, nil, builder)

	resp, err := engine.Run(msg, ctx)
	if err != nil {
		t.Fatalf("expected recovery to clear the error, got: %v", err)
	}
	if resp == nil || resp.Payload.Kind() != protocol.PayloadAcknowledge {
		t.Fatalf("expected the final stage's reply to run after recovery, got %+v", resp)
	}
}

// TestErrorHandlingExhaustsRetries drives ErrorHandlingStage.Recover
// directly past its MaxRetryCount and checks it falls back to a
// terminal Error payload reply.
func TestErrorHandlingExhaustsRetries(t *testing.T) {
	stage := NewErrorHandlingStage(50, true, 2)
	builder := newBuilder()
	msg := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewEdge(1), Target: protocol.NewCloud()},
		Payload: protocol.EdgeReport{VariantKind: protocol.EdgeReportHealth},
	}
	ctx := NewProcessContext(msg.Header.Source, msg.Header.Target, nil, builder)
	cause := MarkTransient(errors.New("timeout talking to device"))

	for i := 0; i < 2; i++ {
		v := stage.Recover(msg, ctx, cause)
		if v.Kind != VerdictContinue {
			t.Fatalf("attempt %d: expected Continue within the retry budget, got %v", i+1, v.Kind)
		}
	}
	v := stage.Recover(msg, ctx, cause)
	if v.Kind != VerdictComplete {
		t.Fatalf("expected a terminal Complete once retries are exhausted, got %v", v.Kind)
	}
	if v.Response == nil || v.Response.Payload.Kind() != protocol.PayloadError {
		t.Fatalf("expected an Error payload reply, got %+v", v.Response)
	}
}

// TestAuthenticationRejectsUnlisted checks the allow-list path.
func TestAuthenticationRejectsUnlisted(t *testing.T) {
	stage := NewAuthenticationStage(30, []string{"edge(1)"})
	builder := newBuilder()
	msg := protocol.Message{
		Header:  protocol.MessageHeader{Source: protocol.NewEdge(2), Target: protocol.NewCloud()},
		Payload: protocol.EdgeReport{VariantKind: protocol.EdgeReportHealth},
	}
	ctx := NewProcessContext(msg.Header.Source, msg.Header.Target, nil, builder)
	v := stage.Process(msg, ctx)
	if v.Kind != VerdictError {
		t.Fatalf("expected a rejection for an unlisted source, got %v", v.Kind)
	}
	var unauth *UnauthorizedError
	if !errors.As(v.Err, &unauth) {
		t.Fatalf("expected *UnauthorizedError, got %T", v.Err)
	}
}

// TestValidationRejectsOutOfRangePosition exercises the payload-level
// invariant recovered from the original source's validator.
func TestValidationRejectsOutOfRangePosition(t *testing.T) {
	stage := NewValidationStage(20)
	builder := newBuilder()
	msg := protocol.Message{
		Header: protocol.MessageHeader{Source: protocol.NewDevice([6]byte{9, 9, 9, 9, 9, 9}), Target: protocol.NewEdge(1)},
		Payload: protocol.DeviceReport{
			VariantKind:  protocol.DeviceReportStatus,
			ActuatorID:   1,
			WindowData:   protocol.WindowData{TargetPosition: 150},
			BatteryLevel: 50,
		},
	}
	ctx := NewProcessContext(msg.Header.Source, msg.Header.Target, nil, builder)
	v := stage.Process(msg, ctx)
	if v.Kind != VerdictError {
		t.Fatalf("expected rejection of an out-of-range window position, got %v", v.Kind)
	}
}

// probeStage is a minimal Stage for assembling ad-hoc pipelines in
// tests without a dedicated type per scenario.
type probeStage struct {
	priority  int
	onProcess func(protocol.Message, *ProcessContext) Verdict
}

func (p *probeStage) Name() string  { return "probe" }
func (p *probeStage) Priority() int { return p.priority }
func (p *probeStage) ShouldExecute(protocol.Message, *ProcessContext) bool { return true }
func (p *probeStage) Process(msg protocol.Message, ctx *ProcessContext) Verdict {
	return p.onProcess(msg, ctx)
}
