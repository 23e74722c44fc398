// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/zeebo/bencode"

	"github.com/majestrate/i2ptracker/tracker/models"
)

func TestWriteErrorProducesBencodeFailureReasonDict(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &Writer{ResponseWriter: rec}

	if err := w.WriteError(errors.New("bad request")); err != nil {
		t.Fatalf("WriteError: %s", err)
	}

	var decoded map[string]interface{}
	if err := bencode.DecodeBytes(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode bencode response: %s", err)
	}
	if decoded["failure reason"] != "bad request" {
		t.Fatalf("failure reason = %v, want %q", decoded["failure reason"], "bad request")
	}
}

func TestWriteAnnounceEncodesPeersByDestinationNotCompact(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &Writer{ResponseWriter: rec}

	res := &models.AnnounceResponse{
		Complete:   1,
		Incomplete: 2,
		Peers: models.PeerList{
			{ID: "peer-1", Destination: "dest-1.b32.i2p"},
		},
	}

	if err := w.WriteAnnounce(res); err != nil {
		t.Fatalf("WriteAnnounce: %s", err)
	}

	var decoded map[string]interface{}
	if err := bencode.DecodeBytes(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode bencode response: %s", err)
	}
	if decoded["complete"] != int64(1) {
		t.Fatalf("complete = %v, want 1", decoded["complete"])
	}
	if decoded["incomplete"] != int64(2) {
		t.Fatalf("incomplete = %v, want 2", decoded["incomplete"])
	}

	peers, ok := decoded["peers"].([]interface{})
	if !ok || len(peers) != 1 {
		t.Fatalf("peers = %v, want a one-element list", decoded["peers"])
	}
	peer, ok := peers[0].(map[string]interface{})
	if !ok {
		t.Fatalf("peer entry = %v, want a dict", peers[0])
	}
	if peer["peer id"] != "peer-1" {
		t.Fatalf("peer id = %v, want %q", peer["peer id"], "peer-1")
	}
	if peer["destination"] != "dest-1.b32.i2p" {
		t.Fatalf("destination = %v, want %q", peer["destination"], "dest-1.b32.i2p")
	}
}

func TestWriteScrapeKeysFilesByInfohash(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &Writer{ResponseWriter: rec}

	torrent := &models.Torrent{Infohash: "abc123", Downloaded: 5}
	res := &models.ScrapeResponse{Files: []*models.Torrent{torrent}}

	if err := w.WriteScrape(res); err != nil {
		t.Fatalf("WriteScrape: %s", err)
	}

	var decoded map[string]interface{}
	if err := bencode.DecodeBytes(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode bencode response: %s", err)
	}
	files, ok := decoded["files"].(map[string]interface{})
	if !ok {
		t.Fatalf("files = %v, want a dict", decoded["files"])
	}
	entry, ok := files["abc123"].(map[string]interface{})
	if !ok {
		t.Fatalf("files[abc123] = %v, want a dict", files["abc123"])
	}
	if entry["downloaded"] != int64(5) {
		t.Fatalf("downloaded = %v, want 5", entry["downloaded"])
	}
}
