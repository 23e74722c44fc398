// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package config implements the configuration for the I2P peer-discovery
// tracker.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrMissingRequiredParam is used by drivers to indicate that an entry
// required to be within the DriverConfig.Params map is not present.
var ErrMissingRequiredParam = errors.New("a parameter that was required by a driver is not present")

// Duration wraps a time.Duration and adds JSON marshalling.
type Duration struct{ time.Duration }

// MarshalJSON transforms a duration into JSON.
func (d *Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON transform JSON into a Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	err := json.Unmarshal(b, &str)
	if err != nil {
		return err
	}
	d.Duration, err = time.ParseDuration(str)
	return err
}

// DriverConfig is the configuration used to connect to an archival driver.
type DriverConfig struct {
	Name   string            `json:"driver"`
	Params map[string]string `json:"params,omitempty"`
}

// StatsConfig is the configuration used to record runtime statistics.
type StatsConfig struct {
	BufferSize        int      `json:"statsBufferSize"`
	IncludeMem        bool     `json:"includeMemStats"`
	VerboseMem        bool     `json:"verboseMemStats"`
	MemUpdateInterval Duration `json:"memStatsInterval"`
}

// samOpts carries i2cp/streaminglib options for SAM sessions.
type samOpts map[string]string

// AsList renders the options as "KEY=VALUE" strings, suitable for appending
// to a SESSION CREATE line.
func (opts samOpts) AsList() (ls []string) {
	for k, v := range opts {
		ls = append(ls, fmt.Sprintf("%s=%s", k, v))
	}
	return
}

// SamConfig describes how to reach and authenticate to the local SAM bridge.
type SamConfig struct {
	Addr       string  `json:"addr"`
	UDPAddr    string  `json:"udpAddr"`
	Opts       samOpts `json:"opts,omitempty"`
	Session    string  `json:"session"`
	ListenPort int     `json:"listenPort"`
}

// IdentityConfig controls where the node's dual keypair is persisted.
type IdentityConfig struct {
	DataDir string `json:"dataDir"`
	KeyFile string `json:"keyFile"`
}

// DiscoveryConfig tunes the signed-datagram peer-discovery engine.
type DiscoveryConfig struct {
	PeerTimeout            Duration `json:"peerTimeout"`
	CleanupInterval        Duration `json:"cleanupInterval"`
	NonceRetention         Duration `json:"nonceRetention"`
	MaxPeersPerResponse    int      `json:"maxPeersPerResponse"`
	MaxDHTNodesPerResponse int      `json:"maxDhtNodesPerResponse"`
	AllowLegacyEnvelopes   bool     `json:"allowLegacyEnvelopes"`
}

// TrackerConfig is the configuration for the BEP3 announce/scrape engine.
type TrackerConfig struct {
	EnableBTTracker  bool     `json:"enableBTTracker"`
	HTTPTrackerPort  int      `json:"httpTrackerPort"`
	PeerTimeout      Duration `json:"peerTimeout"`
	ReapInterval     Duration `json:"reapInterval"`
	AnnounceInterval Duration `json:"announceInterval"`
	MinInterval      Duration `json:"minInterval"`
	NumWantFallback  int      `json:"defaultNumWant"`
	MaxPeersPerReply int      `json:"maxPeersPerReply"`
}

// APIConfig is the configuration for the HTTP JSON admin surface.
type APIConfig struct {
	ListenAddr     string   `json:"apiListenAddr"`
	RequestTimeout Duration `json:"apiRequestTimeout"`
	ReadTimeout    Duration `json:"apiReadTimeout"`
	WriteTimeout   Duration `json:"apiWriteTimeout"`
}

// StoreConfig points at the embedded peer-store database file.
type StoreConfig struct {
	Path             string   `json:"path"`
	SnapshotInterval Duration `json:"snapshotInterval"`
}

// I2PConfig is the configuration for i2p transport options.
type I2PConfig struct {
	SAM    SamConfig `json:"sam"`
	NoI2Pd bool      `json:"noI2Pd"`
}

// Config is the global configuration for an instance of the tracker.
type Config struct {
	Identity  IdentityConfig  `json:"identity"`
	I2P       I2PConfig       `json:"i2p"`
	Discovery DiscoveryConfig `json:"discovery"`
	Tracker   TrackerConfig   `json:"tracker"`
	API       APIConfig       `json:"api"`
	Store     StoreConfig     `json:"store"`
	Archival  DriverConfig    `json:"archival"`
	StatsConfig
}

// DefaultConfig is a configuration that can be used as a fallback value.
var DefaultConfig = Config{
	Identity: IdentityConfig{
		DataDir: "./tracker-data",
		KeyFile: "tracker-keys.json",
	},
	I2P: I2PConfig{
		SAM: SamConfig{
			Addr:       "127.0.0.1:7656",
			UDPAddr:    "127.0.0.1:7655",
			Session:    "i2ptracker",
			Opts:       make(map[string]string),
			ListenPort: 7670,
		},
		NoI2Pd: false,
	},
	Discovery: DiscoveryConfig{
		PeerTimeout:            Duration{90 * time.Second},
		CleanupInterval:        Duration{30 * time.Second},
		NonceRetention:         Duration{10 * time.Minute},
		MaxPeersPerResponse:    100,
		MaxDHTNodesPerResponse: 50,
		AllowLegacyEnvelopes:   true,
	},
	Tracker: TrackerConfig{
		EnableBTTracker:  true,
		HTTPTrackerPort:  7680,
		PeerTimeout:      Duration{time.Hour},
		ReapInterval:     Duration{60 * time.Second},
		AnnounceInterval: Duration{30 * time.Minute},
		MinInterval:      Duration{time.Minute},
		NumWantFallback:  50,
		MaxPeersPerReply: 100,
	},
	API: APIConfig{
		ListenAddr:     "",
		RequestTimeout: Duration{10 * time.Second},
		ReadTimeout:    Duration{10 * time.Second},
		WriteTimeout:   Duration{10 * time.Second},
	},
	Store: StoreConfig{
		Path:             "./tracker-data/tracker.db",
		SnapshotInterval: Duration{30 * time.Second},
	},
	Archival: DriverConfig{
		Name: "noop",
	},
	StatsConfig: StatsConfig{
		BufferSize:        0,
		IncludeMem:        true,
		VerboseMem:        false,
		MemUpdateInterval: Duration{5 * time.Second},
	},
}

// Open is a shortcut to open a file, read it, and generate a Config.
// It supports relative and absolute paths. Given "", it returns DefaultConfig.
func Open(path string) (*Config, error) {
	if path == "" {
		return &DefaultConfig, nil
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Decode casts an io.Reader into a JSONDecoder and decodes it into a *Config.
func Decode(r io.Reader) (*Config, error) {
	conf := DefaultConfig
	err := json.NewDecoder(r).Decode(&conf)
	return &conf, err
}
