// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"errors"
	"fmt"
)

// InvalidMessageError is the Validation stage's failure (spec §7
// "InvalidMessage(reason)"), carrying the human-readable reason a reply
// Error{InvalidRequest} should echo.
type InvalidMessageError struct {
	Reason string
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("pipeline: invalid message: %s", e.Reason)
}

// UnauthorizedError is the Authentication stage's failure (spec §7
// "Unauthorized").
type UnauthorizedError struct {
	Source string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("pipeline: unauthorized source %s", e.Source)
}

// transientError marks an underlying error as transient, letting
// ErrorHandlingStage auto-recover it when configured to (spec §7's
// Timeout kind: "Increment retry; enter cooldown after max_retry_count").
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// MarkTransient wraps err so ErrorHandlingStage treats it as a
// candidate for auto-recovery rather than unconditional propagation.
func MarkTransient(err error) error { return &transientError{err: err} }

// IsTransient reports whether err (or a wrapped cause) was marked
// transient via MarkTransient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
