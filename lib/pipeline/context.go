// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pipeline implements the ordered-stage processing engine (spec
// §4.10): ProcessContext, the Verdict sum type, the Stage interface,
// and the Engine that sorts stages by priority once and runs them in
// order with continue/complete/skip/error short-circuit semantics.
// Grounded on original_source/lumisync-embedded's handler/pipeline.rs
// and, for the atomic counters/typed extension map idiom, on the
// teacher's lib/connections connection-tracking structs (small structs
// of atomic fields read concurrently without a surrounding mutex).
package pipeline

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sieluna/blindsfabric/lib/protocol"
)

// UuidGenerator is the capability a ProcessContext's message builder
// needs; satisfied structurally by protocol.UuidGenerator /
// lib/idgen's generators.
type UuidGenerator = protocol.UuidGenerator

// extensions is a type-indexed store for inter-stage communication
// (spec §4.10: "the authentication stage deposits a verified claim,
// later stage reads it"), keyed by the stored value's reflect.Type so
// SetExtension/GetExtension stay type-safe at the call site without a
// Go interface-per-kind boilerplate.
type extensions struct {
	mu   sync.RWMutex
	vals map[reflect.Type]any
}

func newExtensions() *extensions { return &extensions{vals: make(map[reflect.Type]any)} }

// SetExtension stores v in ctx's extension map, keyed by its type.
func SetExtension[T any](ctx *ProcessContext, v T) {
	ctx.ext.mu.Lock()
	defer ctx.ext.mu.Unlock()
	ctx.ext.vals[reflect.TypeOf(v)] = v
}

// GetExtension retrieves a value of type T previously stored with
// SetExtension, if present.
func GetExtension[T any](ctx *ProcessContext) (T, bool) {
	var zero T
	ctx.ext.mu.RLock()
	defer ctx.ext.mu.RUnlock()
	v, ok := ctx.ext.vals[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// TimeService is the capability a pipeline stage needs from a time
// synchronizer (spec §4.10: "a reference to the time service"),
// satisfied by *lib/timesync.Synchronizer without this package
// importing it directly, keeping pipeline free of a dependency edge
// onto timesync the same way lib/protocol keeps itself free of idgen.
type TimeService interface {
	UptimeToNetworkTime(uptimeMs uint64) (uint64, error)
}

// ProcessContext is shared by every stage of one pipeline run (spec
// §4.10). Counters are atomic so stats can be read concurrently with a
// pipeline still in flight, matching §5's requirement that handlers
// must not block unbounded work inside a stage.
type ProcessContext struct {
	Source protocol.NodeId
	Target protocol.NodeId

	TimeService TimeService
	Builder     *protocol.MessageBuilder

	ext *extensions

	mu         sync.Mutex
	responses  []protocol.Message
	firstError error

	Processed    atomic.Uint64
	Sent         atomic.Uint64
	Errors       atomic.Uint64
	LastActivity atomic.Int64 // unix ms
}

// NewProcessContext builds a ProcessContext for processing a message
// from source to target.
func NewProcessContext(source, target protocol.NodeId, ts TimeService, builder *protocol.MessageBuilder) *ProcessContext {
	ctx := &ProcessContext{Source: source, Target: target, TimeService: ts, Builder: builder, ext: newExtensions()}
	ctx.LastActivity.Store(time.Now().UnixMilli())
	return ctx
}

// AddResponse accumulates a response message emitted mid-pipeline (a
// stage may want to emit more than the single terminal Complete
// response, e.g. an Acknowledge alongside routed forwarding).
func (c *ProcessContext) AddResponse(m protocol.Message) {
	c.mu.Lock()
	c.responses = append(c.responses, m)
	c.mu.Unlock()
	c.Sent.Add(1)
}

// Responses returns all responses accumulated via AddResponse.
func (c *ProcessContext) Responses() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.responses...)
}

// FirstError returns the first Error verdict recorded during this run,
// if any.
func (c *ProcessContext) FirstError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstError
}

func (c *ProcessContext) recordError(err error) {
	c.mu.Lock()
	if c.firstError == nil {
		c.firstError = err
	}
	c.mu.Unlock()
	c.Errors.Add(1)
}

// clearError drops the recorded error, used once a Recoverer heals the
// in-flight message so later stages (and the final FirstError check in
// Engine.Run) see a clean run again.
func (c *ProcessContext) clearError() {
	c.mu.Lock()
	c.firstError = nil
	c.mu.Unlock()
}

func (c *ProcessContext) touch() {
	c.LastActivity.Store(time.Now().UnixMilli())
}
