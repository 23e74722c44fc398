// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package config

import (
	"strings"
	"testing"
	"time"
)

func TestOpenWithEmptyPathReturnsDefaultConfig(t *testing.T) {
	conf, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	if conf != &DefaultConfig {
		t.Fatal("expected Open(\"\") to return the DefaultConfig instance")
	}
}

func TestDecodeOverlaysOntoDefaults(t *testing.T) {
	r := strings.NewReader(`{"discovery":{"peerTimeout":"5m"}}`)
	conf, err := Decode(r)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Discovery.PeerTimeout.Duration != 5*time.Minute {
		t.Fatalf("PeerTimeout = %s, want 5m", conf.Discovery.PeerTimeout)
	}
	// Fields not present in the overlay keep their default values.
	if conf.Tracker.EnableBTTracker != DefaultConfig.Tracker.EnableBTTracker {
		t.Fatal("expected untouched fields to retain their defaults")
	}
}

func TestDurationRoundTripsThroughJSON(t *testing.T) {
	d := Duration{30 * time.Second}
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	var out Duration
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if out.Duration != d.Duration {
		t.Fatalf("round trip = %s, want %s", out.Duration, d.Duration)
	}
}
