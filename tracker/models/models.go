// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package models implements the common data types used by the BEP3
// announce/scrape engine. Unlike the upstream BitTorrent tracker this
// derives from, peers are identified by I2P destination rather than
// IP:port — the announce `port` parameter is reinterpreted as a full
// I2P destination (see Peer.Destination).
package models

import (
	"fmt"
	"strings"
	"time"

	i2p "github.com/majestrate/i2ptracker/sam3"
)

var (
	// ErrMalformedRequest is returned when a request does not contain the
	// required parameters needed to create a model, or when "port"
	// carries something other than a valid I2P destination.
	ErrMalformedRequest = ClientError("malformed request")

	// ErrBadRequest is returned when a request is invalid in the peer's
	// current state. For example, announcing a "completed" event while
	// not a leecher.
	ErrBadRequest = ClientError("bad request")

	// ErrTorrentDNE is returned when a torrent has no active swarm.
	ErrTorrentDNE = NotFoundError("torrent does not exist")
)

type ClientError string
type NotFoundError ClientError
type ProtocolError ClientError

func (e ClientError) Error() string   { return string(e) }
func (e NotFoundError) Error() string { return string(e) }
func (e ProtocolError) Error() string { return string(e) }

// IsPublicError determines whether an error should be propagated to the client.
func IsPublicError(err error) bool {
	_, cl := err.(ClientError)
	_, nf := err.(NotFoundError)
	_, pc := err.(ProtocolError)
	return cl || nf || pc
}

// PeerList represents a list of peers: either seeders or leechers.
type PeerList []Peer

// PeerKey uniquely identifies a peer within a single swarm: peer_id plus
// destination hash, since two different peer_ids can legitimately
// announce from behind the same destination (e.g. multiple clients
// sharing an I2P tunnel).
type PeerKey string

// NewPeerKeyForDest creates a PeerKey from a peer_id and a full destination.
func NewPeerKeyForDest(peerID string, addr i2p.I2PAddr) PeerKey {
	return NewPeerKey(peerID, addr.DestHash())
}

// NewPeerKey creates a PeerKey from a peer_id and a destination hash.
func NewPeerKey(peerID string, dhash i2p.I2PDestHash) PeerKey {
	return PeerKey(fmt.Sprintf("%s//%s", peerID, dhash))
}

// PeerID returns the peer_id section of a PeerKey.
func (pk PeerKey) PeerID() string {
	return strings.SplitN(string(pk), "//", 2)[0]
}

// Dest returns the destination hash section of a PeerKey.
func (pk PeerKey) Dest() (dhash i2p.I2PDestHash) {
	parts := strings.SplitN(string(pk), "//", 2)
	if len(parts) != 2 {
		return
	}
	dhash, _ = i2p.DestHashFromString(parts[1])
	return
}

// Peer represents a participant in a BitTorrent swarm, identified by its
// full I2P destination rather than an IP:port pair.
type Peer struct {
	ID          string      `json:"id"`
	Destination i2p.I2PAddr `json:"destination"`
	Uploaded    uint64      `json:"uploaded"`
	Downloaded  uint64      `json:"downloaded"`
	Left        uint64      `json:"left"`
	LastAnnounce int64      `json:"lastAnnounce"`
}

// Key returns a PeerKey for the given peer.
func (p *Peer) Key() PeerKey {
	return NewPeerKeyForDest(p.ID, p.Destination)
}

// IsSeeder reports whether this peer has nothing left to download.
func (p *Peer) IsSeeder() bool { return p.Left == 0 }

// Torrent represents one BEP3 swarm, keyed by a 20-byte info-hash.
// Invariant: Complete + Incomplete always equals len(Seeders)+len(Leechers).
type Torrent struct {
	Infohash string `json:"infohash"`

	Seeders  PeerMap `json:"seeders"`
	Leechers PeerMap `json:"leechers"`

	Downloaded uint64 `json:"downloaded"`
	LastAction int64  `json:"lastAction"`
}

// PeerCount returns the total number of peers connected on this Torrent.
func (t *Torrent) PeerCount() int {
	return len(t.Seeders) + len(t.Leechers)
}

// Complete returns the seeder count for the BEP3 scrape/announce reply.
func (t *Torrent) Complete() int { return len(t.Seeders) }

// Incomplete returns the leecher count for the BEP3 scrape/announce reply.
func (t *Torrent) Incomplete() int { return len(t.Leechers) }

// PeerMap is a swarm's peer set, keyed by PeerKey.
type PeerMap map[PeerKey]Peer

// Put inserts or replaces a peer in the map.
func (m PeerMap) Put(p Peer) { m[p.Key()] = p }

// Delete removes a peer from the map by key.
func (m PeerMap) Delete(k PeerKey) { delete(m, k) }

// Announce is an announce request from a Peer.
type Announce struct {
	Compact     bool
	Downloaded  uint64
	Event       string
	Infohash    string
	Destination i2p.I2PAddr
	Left        uint64
	NumWant     int
	PeerID      string
	Uploaded    uint64

	Torrent *Torrent
	Peer    *Peer
}

// ClientID returns the part of a PeerID that identifies a Peer's client
// software, per the conventional Azureus-style peer_id prefix.
func (a *Announce) ClientID() (clientID string) {
	length := len(a.PeerID)
	if length >= 6 {
		if a.PeerID[0] == '-' {
			if length >= 7 {
				clientID = a.PeerID[1:7]
			}
		} else {
			clientID = a.PeerID[:6]
		}
	}
	return
}

// BuildPeer creates the Peer representation of an Announce.
func (a *Announce) BuildPeer(t *Torrent) {
	a.Peer = &Peer{
		ID:           a.PeerID,
		Destination:  a.Destination,
		Uploaded:     a.Uploaded,
		Downloaded:   a.Downloaded,
		Left:         a.Left,
		LastAnnounce: time.Now().Unix(),
	}
	if t != nil {
		a.Torrent = t
	}
}

// AnnounceResponse contains the information needed to fulfill an announce.
type AnnounceResponse struct {
	Announce              *Announce
	Complete, Incomplete  int
	Interval, MinInterval time.Duration
	Peers                 PeerList
}

// Scrape is a scrape request, possibly covering multiple info-hashes.
type Scrape struct {
	Infohashes []string
}

// ScrapeResponse contains the information needed to fulfill a scrape.
type ScrapeResponse struct {
	Files []*Torrent
}
