// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package stats

import "runtime"

// MemStatsWrapper exposes the full runtime.MemStats snapshot, refreshed
// on MemUpdateInterval.
type MemStatsWrapper struct {
	*runtime.MemStats
	Verbose bool `json:"-"`
}

// NewMemStatsWrapper allocates a wrapper and records verbose on it; Update
// reads the full runtime.MemStats whatever verbose is set to.
func NewMemStatsWrapper(verbose bool) *MemStatsWrapper {
	return &MemStatsWrapper{MemStats: &runtime.MemStats{}, Verbose: verbose}
}

// Update refreshes the wrapped MemStats snapshot.
func (m *MemStatsWrapper) Update() {
	runtime.ReadMemStats(m.MemStats)
}
