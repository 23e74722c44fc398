// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/majestrate/i2ptracker/http/query"
	i2p "github.com/majestrate/i2ptracker/sam3"
	"github.com/majestrate/i2ptracker/tracker/models"
)

// newAnnounce parses an HTTP request and generates a models.Announce. The
// BEP3 "port" parameter is reinterpreted as the announcing peer's full I2P
// destination — there is no IP:port to report over I2P streaming, so a
// client instead posts the same destination it holds an I2P stream session
// for, and the tracker hands it back out verbatim to other peers.
func (s *Server) newAnnounce(r *http.Request, p httprouter.Params) (*models.Announce, error) {
	q, err := query.New(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}

	event := q.Params["event"]
	numWant := requestedPeerCount(q, s.config.Tracker.NumWantFallback)

	if len(q.Infohashes) == 0 {
		return nil, models.ErrMalformedRequest
	}
	infohash := q.Infohashes[0]

	peerID, exists := q.Params["peer_id"]
	if !exists {
		return nil, models.ErrMalformedRequest
	}

	destStr, exists := q.Params["port"]
	if !exists {
		return nil, models.ErrMalformedRequest
	}
	dest := i2p.I2PAddr(destStr)
	if !dest.Valid() {
		return nil, models.ErrMalformedRequest
	}

	left, err := q.Uint64("left")
	if err != nil {
		return nil, models.ErrMalformedRequest
	}

	downloaded, err := q.Uint64("downloaded")
	if err != nil {
		return nil, models.ErrMalformedRequest
	}

	uploaded, err := q.Uint64("uploaded")
	if err != nil {
		return nil, models.ErrMalformedRequest
	}

	a := &models.Announce{
		Downloaded:  downloaded,
		Event:       event,
		Infohash:    infohash,
		Destination: dest,
		Left:        left,
		NumWant:     numWant,
		PeerID:      peerID,
		Uploaded:    uploaded,
	}
	return a, nil
}

// newScrape parses an HTTP request and generates a models.Scrape.
func (s *Server) newScrape(r *http.Request, p httprouter.Params) (*models.Scrape, error) {
	q, err := query.New(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}

	if q.Infohashes == nil {
		if _, exists := q.Params["info_hash"]; !exists {
			return nil, models.ErrMalformedRequest
		}
		q.Infohashes = []string{q.Params["info_hash"]}
	}

	return &models.Scrape{Infohashes: q.Infohashes}, nil
}

// requestedPeerCount returns the wanted peer count or the provided fallback.
func requestedPeerCount(q *query.Query, fallback int) int {
	if numWantStr, exists := q.Params["numwant"]; exists {
		numWant, err := strconv.Atoi(numWantStr)
		if err != nil {
			return fallback
		}
		return numWant
	}

	return fallback
}
