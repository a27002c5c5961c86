// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"

	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/rawtransport"
)

// ErrBLEUnavailable is returned by unconfiguredBLEDriver, the default
// wired when no platform BLE central stack has been injected. Spec's
// explicit non-goal stops at the rawtransport.BLELink seam; a real
// gatt/bluetooth backend for a given OS plugs in here by satisfying
// rawtransport.BLECentralDriver in place of this stub.
var ErrBLEUnavailable = errors.New("edged: no BLE central driver configured for this build")

type unconfiguredBLEDriver struct{}

func (unconfiguredBLEDriver) Connect(mac [6]byte, opts config.BLEOptions) (rawtransport.BLELink, error) {
	return nil, ErrBLEUnavailable
}
