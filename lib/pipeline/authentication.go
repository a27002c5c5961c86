// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"github.com/sieluna/blindsfabric/lib/protocol"
)

// AuthClaim is the extension the Authentication stage deposits for
// later stages to read (spec §4.10: "the authentication stage deposits
// a verified claim").
type AuthClaim struct {
	Source     string
	Authorized bool
}

// AuthenticationStage enforces an allow-list of source identities
// (spec §4.10). A nil AllowList means every source is authorized,
// matching a development/single-tenant deployment.
type AuthenticationStage struct {
	priority  int
	allowList []string
}

// NewAuthenticationStage builds an AuthenticationStage checking msg
// sources against allowList (nil allows everything).
func NewAuthenticationStage(priority int, allowList []string) *AuthenticationStage {
	return &AuthenticationStage{priority: priority, allowList: allowList}
}

func (s *AuthenticationStage) Name() string  { return "authentication" }
func (s *AuthenticationStage) Priority() int { return s.priority }
func (s *AuthenticationStage) ShouldExecute(protocol.Message, *ProcessContext) bool {
	return true
}

func (s *AuthenticationStage) Process(msg protocol.Message, ctx *ProcessContext) Verdict {
	src := msg.Header.Source.String()
	if !s.authorized(src) {
		return Err(&UnauthorizedError{Source: src})
	}
	SetExtension(ctx, AuthClaim{Source: src, Authorized: true})
	return Continue(msg)
}

func (s *AuthenticationStage) authorized(source string) bool {
	if s.allowList == nil {
		return true
	}
	for _, allowed := range s.allowList {
		if allowed == source {
			return true
		}
	}
	return false
}
