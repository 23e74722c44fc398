// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package chihaya implements the ability to boot the I2P peer-discovery
// tracker with your own imports that can dynamically register additional
// functionality.
package chihaya

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/config"
	"github.com/majestrate/i2ptracker/stats"
	"github.com/majestrate/i2ptracker/supervisor"
)

var (
	maxProcs    int
	configPath  string
	samHost     string
	samPortTCP  int
	samPortUDP  int
	listenPort  int
	peerTimeout int
	noI2Pd      bool
)

func init() {
	flag.IntVar(&maxProcs, "maxprocs", runtime.NumCPU(), "maximum parallel threads")
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.StringVar(&samHost, "sam-host", "127.0.0.1", "address of the local SAM bridge")
	flag.IntVar(&samPortTCP, "sam-port-tcp", 7656, "SAM TCP control port")
	flag.IntVar(&samPortUDP, "sam-port-udp", 7655, "SAM UDP port for raw datagrams")
	flag.IntVar(&listenPort, "listen-port", 7670, "I2P datagram session listen port")
	flag.IntVar(&peerTimeout, "peer-timeout", 300, "seconds of silence before a peer is dropped")
	flag.BoolVar(&noI2Pd, "no-i2pd", false, "recorded in the config only; the tracker never starts an I2P router itself")
}

// applyFlags overlays the flags that describe this host's SAM bridge and
// timeouts onto a configuration loaded from disk (or the built-in default).
func applyFlags(cfg *config.Config) {
	cfg.I2P.SAM.Addr = fmt.Sprintf("%s:%d", samHost, samPortTCP)
	cfg.I2P.SAM.UDPAddr = fmt.Sprintf("%s:%d", samHost, samPortUDP)
	cfg.I2P.SAM.ListenPort = listenPort
	cfg.I2P.NoI2Pd = noI2Pd
	cfg.Discovery.PeerTimeout = config.Duration{Duration: time.Duration(peerTimeout) * time.Second}
}

// Boot starts the tracker. By exporting this function, anyone can import
// their own custom drivers into their own package main and then call
// chihaya.Boot.
func Boot() {
	defer glog.Flush()

	flag.Parse()

	runtime.GOMAXPROCS(maxProcs)
	glog.V(1).Info("Set max threads to ", maxProcs)

	cfg, err := config.Open(configPath)
	if err != nil {
		glog.Fatalf("Failed to parse configuration file: %s\n", err)
	}

	if cfg == &config.DefaultConfig {
		glog.V(1).Info("Using default config")
	} else {
		glog.V(1).Infof("Loaded config file: %s", configPath)
	}

	applyFlags(cfg)

	stats.DefaultStats = stats.New(cfg.StatsConfig)

	sup := supervisor.New(cfg)
	if err := sup.Start(); err != nil {
		glog.Fatal("Start: ", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	glog.Info("Shutting down...")
	signal.Stop(shutdown)
	sup.Stop()
}
