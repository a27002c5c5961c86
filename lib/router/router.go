// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package router implements the node-local message multiplexer (spec
// §4.9): a handler table keyed by PayloadType, dispatched in
// registration order with Continue/Complete/Error short-circuit
// semantics borrowed from lib/pipeline's Verdict, plus bounded fan-out
// channels for broadcast and per-source rate limiting.
package router

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sieluna/blindsfabric/lib/pipeline"
	"github.com/sieluna/blindsfabric/lib/protocol"
)

// Handler processes messages of the payload kinds it declares.
type Handler interface {
	Name() string
	SupportedPayloads() []protocol.PayloadType
	HandleMessage(msg protocol.Message) pipeline.Verdict
}

// HandlerStats is the per-handler counter set spec §4.9 requires
// ("Error ... is counted in per-handler HandlerStats").
type HandlerStats struct {
	Processed atomic.Uint64
	Errors    atomic.Uint64
}

// Errors surfaced by Dispatch beyond a handler's own Verdict.
var (
	ErrNotForThisNode = errors.New("router: message target does not match this node")
	ErrNoHandler      = errors.New("router: no handler registered for payload kind")
	ErrHandlerBusy    = errors.New("router: handler busy: source rate limit exceeded")
)

// FanoutBroadcastCapacity and FanoutDeviceCapacity are the bounded
// channel sizes spec §5 names: 100 for the app/WebSocket broadcast
// fan-out, 4 for the BLE-facing device fan-out.
const (
	FanoutBroadcastCapacity = 100
	FanoutDeviceCapacity    = 4
)

type registeredHandler struct {
	handler Handler
}

// Router multiplexes Messages targeted at self to registered handlers.
type Router struct {
	self protocol.NodeId

	mu             sync.Mutex // guards handlersByType during the registration phase only
	frozen         bool
	handlersByType map[protocol.PayloadType][]registeredHandler

	stats    *xsync.MapOf[string, *HandlerStats]
	limiters *xsync.MapOf[protocol.NodeId, *rate.Limiter]
	rateRPS  float64
	rateBurst int

	appFanout    chan protocol.Message
	deviceFanout chan protocol.Message
}

// New builds a Router for self (this node's identity). rateRPS/rateBurst
// configure the per-source-NodeId token bucket (zero rateRPS disables
// rate limiting).
func New(self protocol.NodeId, rateRPS float64, rateBurst int) *Router {
	return &Router{
		self:           self,
		handlersByType: make(map[protocol.PayloadType][]registeredHandler),
		stats:          xsync.NewMapOf[string, *HandlerStats](),
		limiters:       xsync.NewMapOf[protocol.NodeId, *rate.Limiter](),
		rateRPS:        rateRPS,
		rateBurst:      rateBurst,
		appFanout:      make(chan protocol.Message, FanoutBroadcastCapacity),
		deviceFanout:   make(chan protocol.Message, FanoutDeviceCapacity),
	}
}

// Register adds h for every payload kind it declares, in call order;
// the handler table is built at startup and read-only thereafter (spec
// §5), so Register panics once Freeze has been called.
func (r *Router) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("router: Register called after Freeze")
	}
	for _, pt := range h.SupportedPayloads() {
		r.handlersByType[pt] = append(r.handlersByType[pt], registeredHandler{handler: h})
	}
	r.stats.LoadOrStore(h.Name(), &HandlerStats{})
}

// Freeze marks the handler table read-only; subsequent Register calls
// panic. Calling Dispatch before Freeze is allowed but discouraged.
func (r *Router) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Router) handlersFor(pt protocol.PayloadType) []registeredHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registeredHandler(nil), r.handlersByType[pt]...)
}

// Dispatch validates msg, rate-limits by source, and runs matching
// handlers in registration order until one returns Complete or Error
// (spec §4.9's tie-break rule).
func (r *Router) Dispatch(msg protocol.Message) (*protocol.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if !msg.Header.Target.Equal(r.self) && !msg.Header.Target.IsAny() {
		return nil, ErrNotForThisNode
	}
	if !r.allow(msg.Header.Source) {
		return nil, ErrHandlerBusy
	}

	handlers := r.handlersFor(msg.Payload.Kind())
	if len(handlers) == 0 {
		return nil, ErrNoHandler
	}

	for _, rh := range handlers {
		if !supports(rh.handler, msg.Payload.Kind()) {
			continue
		}
		verdict := rh.handler.HandleMessage(msg)
		stats, _ := r.stats.Load(rh.handler.Name())

		switch verdict.Kind {
		case pipeline.VerdictContinue:
			if stats != nil {
				stats.Processed.Add(1)
			}
			continue
		case pipeline.VerdictComplete:
			if stats != nil {
				stats.Processed.Add(1)
			}
			if verdict.Response != nil {
				return verdict.Response, nil
			}
			return nil, nil
		case pipeline.VerdictSkip:
			if stats != nil {
				stats.Processed.Add(1)
			}
			return nil, nil
		case pipeline.VerdictError:
			if stats != nil {
				stats.Errors.Add(1)
			}
			return nil, verdict.Err
		}
	}
	return nil, nil
}

func supports(h Handler, pt protocol.PayloadType) bool {
	for _, sp := range h.SupportedPayloads() {
		if sp == pt {
			return true
		}
	}
	return false
}

func (r *Router) allow(source protocol.NodeId) bool {
	if r.rateRPS <= 0 {
		return true
	}
	limiter, _ := r.limiters.LoadOrCompute(source, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(r.rateRPS), r.rateBurst)
	})
	return limiter.Allow()
}

// HandlerStatsFor returns a snapshot of the named handler's counters,
// if a handler by that name has been registered.
func (r *Router) HandlerStatsFor(name string) (processed, errs uint64, ok bool) {
	s, found := r.stats.Load(name)
	if !found {
		return 0, 0, false
	}
	return s.Processed.Load(), s.Errors.Load(), true
}

// BroadcastApp enqueues msg on the app-facing fan-out channel,
// dropping the oldest queued message if it is full (spec §5: "for
// broadcast, drop the oldest outgoing message").
func (r *Router) BroadcastApp(msg protocol.Message) {
	broadcast(r.appFanout, msg)
}

// BroadcastDevice enqueues msg on the device-facing fan-out channel
// with the same drop-oldest policy, sized for BLE's tighter bound.
func (r *Router) BroadcastDevice(msg protocol.Message) {
	broadcast(r.deviceFanout, msg)
}

func broadcast(ch chan protocol.Message, msg protocol.Message) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

// AppFanout exposes the app-facing broadcast channel for subscribers.
func (r *Router) AppFanout() <-chan protocol.Message { return r.appFanout }

// DeviceFanout exposes the device-facing broadcast channel for subscribers.
func (r *Router) DeviceFanout() <-chan protocol.Message { return r.deviceFanout }
