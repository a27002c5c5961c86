// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSourceMismatch is returned by Message.Validate when the header's
// source NodeId is inconsistent with the payload kind it carries (spec
// §3: CloudCommand requires Cloud source, Device* requires Device
// source, Edge* requires Edge source).
var ErrSourceMismatch = errors.New("protocol: message source does not match payload kind")

// MessageHeader carries routing and provenance metadata common to every
// message on the fabric.
type MessageHeader struct {
	ID        uuid.UUID
	Timestamp time.Time
	Priority  Priority
	Source    NodeId
	Target    NodeId
}

// Message is the top-level envelope exchanged between tiers.
type Message struct {
	Header  MessageHeader
	Payload MessagePayload
}

// Validate enforces the source/payload-kind invariants from spec §3. It
// is deliberately NOT invoked by the wireformat decoder: per §4.4 this
// check belongs on the router's decode path, not the framer, so that a
// malformed-but-well-formed-wire message can still be logged/reported
// rather than silently dropped at the framing layer.
func (m Message) Validate() error {
	switch m.Payload.Kind() {
	case PayloadCloudCommand:
		if !m.Header.Source.IsCloud() {
			return ErrSourceMismatch
		}
	case PayloadEdgeReport, PayloadEdgeCommand:
		if !m.Header.Source.IsEdge() {
			return ErrSourceMismatch
		}
	case PayloadDeviceReport:
		if !m.Header.Source.IsDevice() {
			return ErrSourceMismatch
		}
	}
	return nil
}
