// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wireformat

import "math"

func float32bits(f float32) uint32      { return math.Float32bits(f) }
func float32frombits(b uint32) float32  { return math.Float32frombits(b) }
