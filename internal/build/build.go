// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package build exposes version metadata baked into the binary at link
// time, in the same spirit as the teacher project's own build.go: a
// handful of string vars intended to be set with -ldflags "-X ..." and a
// single formatted line every daemon logs on startup.
package build

import "fmt"

// Version, Stamp, User and Host are overridden at build time with
// -ldflags, e.g.:
//
//	go build -ldflags "-X github.com/sieluna/blindsfabric/internal/build.Version=v1.2.3" ./cmd/edged
var (
	Version = "unknown-dev"
	Stamp   = "unknown"
	User    = "unknown-user"
	Host    = "unknown-host"
)

// Long returns a single human-readable line identifying this build,
// suitable for the first line a daemon logs on startup.
func Long(component string) string {
	return fmt.Sprintf("%s %s (built %s by %s@%s)", component, Version, Stamp, User, Host)
}
