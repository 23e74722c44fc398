// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"net/http"
	"time"

	"github.com/chihaya/bencode"

	"github.com/majestrate/i2ptracker/tracker/models"
)

// Writer implements the tracker.Writer interface for the HTTP protocol.
type Writer struct {
	http.ResponseWriter
}

// WriteError writes a bencode dict with a failure reason.
func (w *Writer) WriteError(err error) error {
	bencoder := bencode.NewEncoder(w)

	w.Header().Set("Content-Type", "text/plain")
	return bencoder.Encode(bencode.Dict{
		"failure reason": err.Error(),
	})
}

// WriteAnnounce writes a bencode dict representation of an AnnounceResponse.
// Compact format is not offered: a 6-byte IP:port cannot encode an I2P
// destination, so every peer is written out as a dict keyed by
// "destination" regardless of what the client's "compact" parameter asked
// for.
func (w *Writer) WriteAnnounce(res *models.AnnounceResponse) error {
	dict := bencode.Dict{
		"complete":     res.Complete,
		"incomplete":   res.Incomplete,
		"interval":     int(res.Interval / time.Second),
		"min interval": int(res.MinInterval / time.Second),
		"peers":        peerDicts(res.Peers),
	}

	w.Header().Set("Content-Type", "text/plain")
	bencoder := bencode.NewEncoder(w)
	return bencoder.Encode(dict)
}

// WriteScrape writes a bencode dict representation of a ScrapeResponse.
func (w *Writer) WriteScrape(res *models.ScrapeResponse) error {
	dict := bencode.Dict{
		"files": filesDict(res.Files),
	}

	w.Header().Set("Content-Type", "text/plain")
	bencoder := bencode.NewEncoder(w)
	return bencoder.Encode(dict)
}

func peerDicts(peers models.PeerList) []bencode.Dict {
	out := make([]bencode.Dict, 0, len(peers))
	for _, peer := range peers {
		out = append(out, bencode.Dict{
			"peer id":     peer.ID,
			"destination": string(peer.Destination),
		})
	}
	return out
}

func filesDict(torrents []*models.Torrent) bencode.Dict {
	d := bencode.NewDict()
	for _, torrent := range torrents {
		d[torrent.Infohash] = torrentDict(torrent)
	}
	return d
}

func torrentDict(torrent *models.Torrent) bencode.Dict {
	return bencode.Dict{
		"complete":   torrent.Complete(),
		"incomplete": torrent.Incomplete(),
		"downloaded": torrent.Downloaded,
	}
}
