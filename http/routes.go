// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/majestrate/i2ptracker/stats"
	"github.com/majestrate/i2ptracker/tracker/models"
)

func handleTorrentError(err error, w *Writer) (int, error) {
	if err == nil {
		return http.StatusOK, nil
	} else if models.IsPublicError(err) {
		w.WriteError(err)
		stats.RecordEvent(stats.ClientError)
		return http.StatusOK, nil
	}

	return http.StatusInternalServerError, err
}

func (s *Server) serveAnnounce(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	writer := &Writer{w}
	ann, err := s.newAnnounce(r, p)
	if err != nil {
		return handleTorrentError(err, writer)
	}

	torrent := s.tracker.FindTorrent(ann.Infohash)
	ann.Torrent = torrent

	res, err := s.tracker.HandleAnnounce(ann)
	if err != nil {
		return handleTorrentError(err, writer)
	}
	return handleTorrentError(writer.WriteAnnounce(res), writer)
}

func (s *Server) serveScrape(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	writer := &Writer{w}
	scrape, err := s.newScrape(r, p)
	if err != nil {
		return handleTorrentError(err, writer)
	}

	res, err := s.tracker.HandleScrape(scrape)
	if err != nil {
		return handleTorrentError(err, writer)
	}
	return handleTorrentError(writer.WriteScrape(res), writer)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	addr := s.ServerAddr()
	txt := fmt.Sprintf("i2p bittorrent tracker announce url http://%s/announce\n", addr)
	_, err := io.WriteString(w, txt)
	txt = fmt.Sprintf("to use:\n\nmktorrent -a http://%s/announce somedirectory\n", addr)
	_, err = io.WriteString(w, txt)
	return http.StatusOK, err
}

// serveStats renders a tiny HTML snapshot of tracker activity for an
// operator glancing at the page in a browser; it is not a machine API
// (see package api for that).
func (s *Server) serveStats(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	snap := stats.DefaultStats
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>i2ptracker</h1><pre>\n")
	fmt.Fprintf(w, "uptime:           %s\n", snap.Uptime())
	fmt.Fprintf(w, "announces:        %d\n", snap.Announces)
	fmt.Fprintf(w, "scrapes:          %d\n", snap.Scrapes)
	fmt.Fprintf(w, "discovery events: %d\n", snap.DiscoveryAnnounces)
	fmt.Fprintf(w, "nonce replays:    %d\n", snap.DiscoveryNonceReplays)
	fmt.Fprintf(w, "signing rejects:  %d\n", snap.DiscoverySigningRejections)
	fmt.Fprintf(w, "</pre></body></html>\n")
	return http.StatusOK, nil
}
