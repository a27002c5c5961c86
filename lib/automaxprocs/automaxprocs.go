// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package automaxprocs sets GOMAXPROCS from the container's CPU quota on
// import, the same blank-import-for-its-side-effect shape the teacher
// repo uses so every cloud-tier binary picks up the right core count
// without each main() repeating the call.
package automaxprocs

import (
	"github.com/sieluna/blindsfabric/lib/logger"
	"go.uber.org/automaxprocs/maxprocs"
)

var logFacility = logger.DefaultLogger.NewFacility("automaxprocs", "GOMAXPROCS cgroup detection")

func init() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logFacility.Debugf(format, args...)
	})); err != nil {
		logFacility.Warnf("failed to set GOMAXPROCS: %v", err)
	}
}
