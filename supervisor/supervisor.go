// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package supervisor owns the tracker process's lifecycle: it loads the
// identity and peer store, opens the SAM datagram and stream sessions,
// starts the discovery engine and (optionally) the BEP3 HTTP front end
// and admin API, installs the periodic maintenance timers, and tears
// everything back down in reverse on shutdown.
package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/api"
	"github.com/majestrate/i2ptracker/archival"
	"github.com/majestrate/i2ptracker/config"
	"github.com/majestrate/i2ptracker/discovery"
	"github.com/majestrate/i2ptracker/http"
	"github.com/majestrate/i2ptracker/identity"
	"github.com/majestrate/i2ptracker/sam3"
	"github.com/majestrate/i2ptracker/stats"
	"github.com/majestrate/i2ptracker/store"
	"github.com/majestrate/i2ptracker/tracker"
)

// State names a point in the supervisor's lifecycle.
type State int

const (
	StateInit State = iota
	StateStarting
	StateRunning
	StateReconnecting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// server is the uniform shape every front end (HTTP, API) exposes.
type server interface {
	Setup() error
	Serve()
	Stop()
}

// Supervisor drives one tracker process end to end.
type Supervisor struct {
	conf *config.Config

	mtx   sync.Mutex
	state State

	store     *store.Store
	id        identity.Identity
	transport *sam3.Transport
	engine    *discovery.Engine
	archival  *archival.Sink
	tkr       *tracker.Tracker

	servers []server

	timers []*time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New builds a Supervisor for conf. Nothing is opened until Start.
func New(conf *config.Config) *Supervisor {
	return &Supervisor{conf: conf, state: StateInit, stop: make(chan struct{})}
}

func (s *Supervisor) setState(st State) {
	s.mtx.Lock()
	s.state = st
	s.mtx.Unlock()
	glog.V(1).Infof("supervisor: %s", st)
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

// Start brings every component up in order: peer store, identity, SAM
// datagram session, discovery engine, optional BEP3 front end, admin
// API, maintenance timers. It returns once the datagram session is open
// and the front ends and timers have been started in the background (it
// does not wait for the front ends to serve), or an error on the first
// fatal failure (SAM unreachable, identity mint failure, unable to open
// the database).
func (s *Supervisor) Start() error {
	s.setState(StateStarting)

	st, err := store.Open(s.conf.Store.Path)
	if err != nil {
		return fmt.Errorf("supervisor: failed to open peer store: %w", err)
	}
	s.store = st

	sam, err := sam3.NewSAM(s.conf.I2P.SAM.Addr)
	if err != nil {
		return fmt.Errorf("supervisor: SAM unreachable at %s: %w", s.conf.I2P.SAM.Addr, err)
	}

	id, err := identity.LoadOrMint(sam, s.conf.Identity.DataDir, s.conf.Identity.KeyFile)
	if err != nil {
		return fmt.Errorf("supervisor: failed to load or mint identity: %w", err)
	}
	s.id = id

	glog.Infof("supervisor: identity %s (%s)", id.B32(), id.Destination())
	if err := identity.WriteDestinationFile(s.conf.Identity.DataDir, "tracker-destination.txt", id.Destination()); err != nil {
		glog.Errorf("supervisor: failed to write destination file: %s", err)
	}

	transport := sam3.NewTransport(
		s.conf.I2P.SAM.Addr,
		s.conf.I2P.SAM.UDPAddr,
		s.conf.I2P.SAM.Session,
		s.conf.I2P.SAM.ListenPort,
		id.I2PKeys,
		s.conf.I2P.SAM.Opts.AsList(),
	)
	s.transport = transport

	archivalSink, err := archival.Open(s.conf.Archival)
	if err != nil {
		glog.Errorf("supervisor: archival sink disabled: %s", err)
	} else {
		s.archival = archivalSink
	}

	var trackerSink tracker.ArchivalSink
	var discoverySink discovery.ArchivalSink
	if s.archival != nil {
		trackerSink = s.archival
		discoverySink = s.archival
	}
	s.tkr = tracker.New(s.conf.Tracker, trackerSink)

	engine := discovery.New(s.store, transport, id, s.conf.Discovery, discoverySink)
	s.engine = engine
	transport.OnData(engine.HandleDatagram)

	if err := transport.Open(); err != nil {
		return fmt.Errorf("supervisor: failed to open datagram session: %w", err)
	}

	if s.conf.Tracker.EnableBTTracker {
		n := sam3.NewI2PNetwork(s.conf.I2P, id.I2PKeys)
		httpSrv := http.NewServer(n, s.conf, s.tkr)
		s.servers = append(s.servers, httpSrv)

		if err := identity.WriteDestinationFile(s.conf.Identity.DataDir, "bt-tracker-destination.txt", id.Destination()); err != nil {
			glog.Errorf("supervisor: failed to write BT tracker destination file: %s", err)
		}

		now := time.Now().UnixNano() / int64(time.Millisecond)
		if err := s.store.RegisterLocalPeer(string(id.Destination()), id.B32(), "tracker", now); err != nil {
			glog.Errorf("supervisor: failed to self-register BEP3 destination: %s", err)
		}
	}

	if s.conf.API.ListenAddr != "" {
		s.servers = append(s.servers, api.NewServer(s.conf, s.tkr))
	}

	for _, srv := range s.servers {
		s.startServer(srv)
	}

	s.installTimers()

	s.setState(StateRunning)
	return nil
}

// startServer runs one front end's Setup/Serve loop, retrying Setup on a
// one-second backoff until it succeeds, matching the teacher's original
// boot retry shape.
func (s *Supervisor) startServer(srv server) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if err := srv.Setup(); err == nil {
				srv.Serve()
				return
			} else {
				glog.Errorf("supervisor: server setup failed: %s", err)
			}
			select {
			case <-s.stop:
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

// installTimers starts the peer sweep, nonce sweep, stats log, and DB
// snapshot tasks named in spec.md §4.7.
func (s *Supervisor) installTimers() {
	s.runEvery(s.conf.Discovery.CleanupInterval.Duration, s.sweepPeers)
	s.runEvery(s.conf.Discovery.NonceRetention.Duration, s.sweepNonces)
	s.runEvery(s.conf.Tracker.ReapInterval.Duration, s.tkr.Sweep)
	s.runEvery(30*time.Second, s.logStats)
	s.runEvery(s.conf.Store.SnapshotInterval.Duration, s.snapshot)
}

func (s *Supervisor) runEvery(interval time.Duration, task func()) {
	t := time.NewTicker(interval)
	s.timers = append(s.timers, t)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-t.C:
				task()
			case <-s.stop:
				return
			}
		}
	}()
}

// sweepPeers removes stale peer records and broadcasts exactly one
// PEER_OFFLINE per removed peer, computed from the same rows the delete
// touched.
func (s *Supervisor) sweepPeers() {
	cutoff := time.Now().Add(-s.conf.Discovery.PeerTimeout.Duration).UnixNano() / int64(time.Millisecond)
	dead, err := s.store.Sweep(cutoff)
	if err != nil {
		glog.Errorf("supervisor: peer sweep failed: %s", err)
		return
	}
	for _, p := range dead {
		glog.Infof("supervisor: peer %s timed out", p.B32Address)
		s.engine.BroadcastOffline(p)
	}
}

func (s *Supervisor) sweepNonces() {
	cutoff := time.Now().Add(-s.conf.Discovery.NonceRetention.Duration).UnixNano() / int64(time.Millisecond)
	n, err := s.store.SweepNoncesOlderThan(cutoff)
	if err != nil {
		glog.Errorf("supervisor: nonce sweep failed: %s", err)
		return
	}
	if n > 0 {
		glog.V(1).Infof("supervisor: swept %d expired nonces", n)
	}
}

func (s *Supervisor) logStats() {
	cutoff := time.Now().Add(-s.conf.Discovery.PeerTimeout.Duration).UnixNano() / int64(time.Millisecond)
	n, err := s.store.CountActivePeers(cutoff)
	if err != nil {
		glog.Errorf("supervisor: stats query failed: %s", err)
		return
	}
	glog.Infof("Stats: %d active peers", n)
}

func (s *Supervisor) snapshot() {
	if err := s.store.Snapshot(); err != nil {
		glog.Errorf("supervisor: snapshot failed: %s", err)
	}
}

// Stop shuts every component down in reverse order and attempts one
// final snapshot regardless of what else failed.
func (s *Supervisor) Stop() {
	s.setState(StateStopping)

	close(s.stop)
	for _, t := range s.timers {
		t.Stop()
	}
	for _, srv := range s.servers {
		srv.Stop()
	}
	if err := s.transport.Close(); err != nil {
		glog.Errorf("supervisor: transport close failed: %s", err)
	}
	if s.archival != nil {
		if err := s.archival.Close(); err != nil {
			glog.Errorf("supervisor: archival close failed: %s", err)
		}
	}

	s.wg.Wait()

	if err := s.store.Snapshot(); err != nil {
		glog.Errorf("supervisor: final snapshot failed: %s", err)
	}
	if err := s.store.Close(); err != nil {
		glog.Errorf("supervisor: store close failed: %s", err)
	}

	s.setState(StateStopped)
	stats.DefaultStats.Close()
}
