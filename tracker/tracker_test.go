// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"testing"
	"time"

	"github.com/majestrate/i2ptracker/config"
	i2p "github.com/majestrate/i2ptracker/sam3"
	"github.com/majestrate/i2ptracker/tracker/models"
)

func testConfig() config.TrackerConfig {
	return config.TrackerConfig{
		PeerTimeout:      config.Duration{Duration: time.Minute},
		AnnounceInterval: config.Duration{Duration: 30 * time.Minute},
		MinInterval:      config.Duration{Duration: time.Minute},
		MaxPeersPerReply: 50,
	}
}

func announceFor(infohash, peerID string, dest i2p.I2PAddr, left uint64, event string) *models.Announce {
	return &models.Announce{
		Infohash:    infohash,
		PeerID:      peerID,
		Destination: dest,
		Left:        left,
		Event:       event,
	}
}

func TestHandleAnnounceSeederLeecherTransitions(t *testing.T) {
	tkr := New(testConfig(), nil)
	infohash := "abc123"

	ann := announceFor(infohash, "peer-1", i2p.I2PAddr("dest-1"), 100, "started")
	ann.Torrent = tkr.FindTorrent(infohash)
	res, err := tkr.HandleAnnounce(ann)
	if err != nil {
		t.Fatal(err)
	}
	if res.Complete != 0 || res.Incomplete != 1 {
		t.Fatalf("after started leecher: complete=%d incomplete=%d, want 0,1", res.Complete, res.Incomplete)
	}

	ann2 := announceFor(infohash, "peer-1", i2p.I2PAddr("dest-1"), 0, "completed")
	ann2.Torrent = tkr.FindTorrent(infohash)
	res2, err := tkr.HandleAnnounce(ann2)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Complete != 1 || res2.Incomplete != 0 {
		t.Fatalf("after completed: complete=%d incomplete=%d, want 1,0", res2.Complete, res2.Incomplete)
	}
	if ann2.Torrent.Downloaded != 1 {
		t.Fatalf("Downloaded = %d, want 1", ann2.Torrent.Downloaded)
	}

	ann3 := announceFor(infohash, "peer-1", i2p.I2PAddr("dest-1"), 0, "completed")
	ann3.Torrent = tkr.FindTorrent(infohash)
	if _, err := tkr.HandleAnnounce(ann3); err != nil {
		t.Fatal(err)
	}
	if ann3.Torrent.Downloaded != 1 {
		t.Fatalf("a second completed announce from the same peer must not double-count: Downloaded = %d, want 1", ann3.Torrent.Downloaded)
	}

	ann4 := announceFor(infohash, "peer-1", i2p.I2PAddr("dest-1"), 0, "stopped")
	ann4.Torrent = tkr.FindTorrent(infohash)
	res4, err := tkr.HandleAnnounce(ann4)
	if err != nil {
		t.Fatal(err)
	}
	if res4.Complete != 0 || res4.Incomplete != 0 {
		t.Fatalf("after stopped: complete=%d incomplete=%d, want 0,0", res4.Complete, res4.Incomplete)
	}
}

func TestHandleAnnounceExcludesRequesterFromPeerList(t *testing.T) {
	tkr := New(testConfig(), nil)
	infohash := "abc123"
	torrent := tkr.FindTorrent(infohash)

	other := announceFor(infohash, "peer-other", i2p.I2PAddr("dest-other"), 0, "started")
	other.Torrent = torrent
	if _, err := tkr.HandleAnnounce(other); err != nil {
		t.Fatal(err)
	}

	self := announceFor(infohash, "peer-self", i2p.I2PAddr("dest-self"), 50, "started")
	self.Torrent = torrent
	res, err := tkr.HandleAnnounce(self)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range res.Peers {
		if p.ID == "peer-self" {
			t.Fatal("announce response must not include the requesting peer itself")
		}
	}
	if len(res.Peers) != 1 {
		t.Fatalf("len(Peers) = %d, want 1", len(res.Peers))
	}
}

func TestHandleAnnounceCapsNumWantAtMaxPeersPerReply(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPeersPerReply = 2
	tkr := New(cfg, nil)
	infohash := "abc123"
	torrent := tkr.FindTorrent(infohash)

	for i := 0; i < 5; i++ {
		a := announceFor(infohash, "peer-"+string(rune('a'+i)), i2p.I2PAddr("dest-"+string(rune('a'+i))), 0, "started")
		a.Torrent = torrent
		if _, err := tkr.HandleAnnounce(a); err != nil {
			t.Fatal(err)
		}
	}

	want := announceFor(infohash, "peer-z", i2p.I2PAddr("dest-z"), 0, "started")
	want.NumWant = 9999
	want.Torrent = torrent
	res, err := tkr.HandleAnnounce(want)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Peers) > cfg.MaxPeersPerReply {
		t.Fatalf("len(Peers) = %d, want <= %d", len(res.Peers), cfg.MaxPeersPerReply)
	}
}

func TestSweepRemovesStalePeersAndEmptyTorrents(t *testing.T) {
	cfg := testConfig()
	cfg.PeerTimeout = config.Duration{Duration: time.Millisecond}
	tkr := New(cfg, nil)
	infohash := "abc123"
	torrent := tkr.FindTorrent(infohash)

	a := announceFor(infohash, "peer-1", i2p.I2PAddr("dest-1"), 0, "started")
	a.Torrent = torrent
	if _, err := tkr.HandleAnnounce(a); err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)
	tkr.Sweep()

	if _, ok := tkr.LookupTorrent(infohash); ok {
		t.Fatal("expected the torrent to be removed once it has no peers left")
	}
}

func TestHandleScrapeUnknownInfohash(t *testing.T) {
	tkr := New(testConfig(), nil)
	res, err := tkr.HandleScrape(&models.Scrape{Infohashes: []string{"never-seen"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(res.Files))
	}
	f := res.Files[0]
	if f.Infohash != "never-seen" || f.Complete() != 0 || f.Incomplete() != 0 {
		t.Fatalf("unexpected scrape entry for unknown infohash: %+v", f)
	}
}
