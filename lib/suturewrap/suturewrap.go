// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package suturewrap adapts a plain context-based goroutine function into
// a suture/v4 Service, the same helper shape the teacher project uses to
// drop ad-hoc goroutines into a supervisor tree without rewriting them.
package suturewrap

import "context"

// Service implements suture/v4's Service interface: Serve is handed a
// context the Supervisor cancels to request shutdown, and is expected to
// return once fn has unwound.
type Service struct {
	fn   func(ctx context.Context)
	name string
}

// AsService wraps fn as a suture.Service named name.
func AsService(fn func(ctx context.Context), name string) *Service {
	return &Service{fn: fn, name: name}
}

// Serve runs fn until ctx is cancelled. A cooperative return after
// cancellation is reported as nil, matching suture/v4's convention that
// only unexpected failures return an error (the supervisor otherwise
// treats any return as a restart-worthy exit).
func (s *Service) Serve(ctx context.Context) error {
	s.fn(ctx)
	return nil
}

func (s *Service) String() string { return s.name }
