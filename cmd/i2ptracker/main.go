// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Command i2ptracker runs the I2P peer-discovery and BEP3 tracker.
package main

import (
	"github.com/majestrate/i2ptracker"
)

func main() {
	chihaya.Boot()
}
