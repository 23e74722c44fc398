// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package tracker implements the BEP3 announce/scrape engine: per-torrent
// swarm state, announce/scrape handling, and the stale-peer sweep. Swarm
// state lives entirely in memory — the embedded SQL store (package
// store) is reserved for the discovery engine's peer/nonce/DHT records.
package tracker

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/config"
	"github.com/majestrate/i2ptracker/tracker/models"
)

// ArchivalSink optionally records BEP3 events for long-term operator
// reporting. It is never consulted for live swarm state.
type ArchivalSink interface {
	RecordAnnounce(infohash string, destination string, event string) error
}

// Writer is implemented by the transport that serves announce/scrape
// responses; the HTTP front end's Writer satisfies it.
type Writer interface {
	WriteError(err error) error
	WriteAnnounce(res *models.AnnounceResponse) error
	WriteScrape(res *models.ScrapeResponse) error
}

// Tracker holds every active torrent swarm.
type Tracker struct {
	Config config.TrackerConfig

	archival ArchivalSink

	mtx      sync.Mutex
	torrents map[string]*models.Torrent
}

// New builds a Tracker. archival may be nil, in which case BEP3 events are
// not recorded anywhere beyond the in-memory swarm state.
func New(cfg config.TrackerConfig, archival ArchivalSink) *Tracker {
	return &Tracker{
		Config:   cfg,
		archival: archival,
		torrents: make(map[string]*models.Torrent),
	}
}

// Close is a no-op placeholder matching the supervisor's uniform
// start/stop shape for every component it owns.
func (tkr *Tracker) Close() error { return nil }

// FindTorrent returns the swarm for infohash, creating it if necessary.
func (tkr *Tracker) FindTorrent(infohash string) *models.Torrent {
	tkr.mtx.Lock()
	defer tkr.mtx.Unlock()
	t, ok := tkr.torrents[infohash]
	if !ok {
		t = &models.Torrent{
			Infohash: infohash,
			Seeders:  make(models.PeerMap),
			Leechers: make(models.PeerMap),
		}
		tkr.torrents[infohash] = t
	}
	return t
}

// LookupTorrent returns the swarm for infohash without creating it.
func (tkr *Tracker) LookupTorrent(infohash string) (*models.Torrent, bool) {
	tkr.mtx.Lock()
	defer tkr.mtx.Unlock()
	t, ok := tkr.torrents[infohash]
	return t, ok
}

// recordArchival best-effort forwards an announce event to the archival
// sink; failures are logged and never surfaced to the announcing peer.
func (tkr *Tracker) recordArchival(infohash, destination, event string) {
	if tkr.archival == nil {
		return
	}
	if err := tkr.archival.RecordAnnounce(infohash, destination, event); err != nil {
		glog.Errorf("tracker: archival record failed: %s", err)
	}
}

// Sweep removes peers older than the tracker's PeerTimeout from every
// swarm, and removes torrents left with no peers at all. Announce times
// are whole Unix seconds, so a peer whose last announce falls in the
// cutoff's second is removed too.
func (tkr *Tracker) Sweep() {
	cutoff := time.Now().Add(-tkr.Config.PeerTimeout.Duration).Unix()

	tkr.mtx.Lock()
	defer tkr.mtx.Unlock()

	for infohash, t := range tkr.torrents {
		for key, p := range t.Seeders {
			if p.LastAnnounce <= cutoff {
				delete(t.Seeders, key)
			}
		}
		for key, p := range t.Leechers {
			if p.LastAnnounce <= cutoff {
				delete(t.Leechers, key)
			}
		}
		if t.PeerCount() == 0 {
			delete(tkr.torrents, infohash)
		}
	}
}
