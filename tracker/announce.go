// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"time"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/stats"
	"github.com/majestrate/i2ptracker/tracker/models"
)

// HandleAnnounce runs a BEP3 announce against ann.Torrent, updating the
// swarm's peer map according to ann.Event and returning the response to
// hand back to the requester.
//
// The aggregate invariant complete+incomplete == len(active peers) holds
// because every event path removes any stale copy of the peer before
// re-inserting it in exactly one of Seeders or Leechers.
func (tkr *Tracker) HandleAnnounce(ann *models.Announce) (*models.AnnounceResponse, error) {
	t := ann.Torrent
	key := models.NewPeerKeyForDest(ann.PeerID, ann.Destination)

	switch ann.Event {
	case "stopped":
		t.Seeders.Delete(key)
		t.Leechers.Delete(key)
		tkr.recordArchival(ann.Infohash, string(ann.Destination), "stopped")

	case "completed":
		// A peer may only transition to complete once; a second
		// "completed" announce from an already-complete peer does not
		// increment Downloaded again.
		if _, wasLeecher := t.Leechers[key]; wasLeecher {
			t.Downloaded++
		}
		t.Leechers.Delete(key)
		ann.BuildPeer(t)
		t.Seeders.Put(*ann.Peer)
		tkr.recordArchival(ann.Infohash, string(ann.Destination), "completed")

	default:
		// "started", empty string, or any other event value: insert or
		// refresh the peer in whichever bucket its Left value selects.
		ann.BuildPeer(t)
		if ann.Peer.IsSeeder() {
			t.Leechers.Delete(key)
			t.Seeders.Put(*ann.Peer)
		} else {
			t.Seeders.Delete(key)
			t.Leechers.Put(*ann.Peer)
		}
		if ann.Event == "started" {
			tkr.recordArchival(ann.Infohash, string(ann.Destination), "started")
		}
	}

	t.LastAction = time.Now().Unix()

	numWant := ann.NumWant
	if numWant <= 0 || numWant > tkr.Config.MaxPeersPerReply {
		numWant = tkr.Config.MaxPeersPerReply
	}

	res := &models.AnnounceResponse{
		Announce:    ann,
		Complete:    t.Complete(),
		Incomplete:  t.Incomplete(),
		Interval:    tkr.Config.AnnounceInterval.Duration,
		MinInterval: tkr.Config.MinInterval.Duration,
		Peers:       samplePeers(t, key, numWant),
	}

	glog.V(2).Infof("tracker: announce %s event=%q infohash=%s complete=%d incomplete=%d",
		ann.PeerID, ann.Event, ann.Infohash, res.Complete, res.Incomplete)
	stats.RecordEvent(stats.Announce)

	return res, nil
}

// samplePeers returns up to numWant peers from t, excluding the
// announcing peer itself. Order is whatever Go's map iteration gives,
// which is randomized per run — sufficient to spread load across
// repeated announces without a dedicated shuffle.
func samplePeers(t *models.Torrent, exclude models.PeerKey, numWant int) models.PeerList {
	out := make(models.PeerList, 0, numWant)
	for k, p := range t.Seeders {
		if k == exclude {
			continue
		}
		if len(out) >= numWant {
			return out
		}
		out = append(out, p)
	}
	for k, p := range t.Leechers {
		if k == exclude {
			continue
		}
		if len(out) >= numWant {
			return out
		}
		out = append(out, p)
	}
	return out
}
