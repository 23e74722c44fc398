// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package client implements the discovery engine's client side (spec.md
// §4.8): the same signed-envelope wire format as package discovery, but
// acting as a peer rather than the tracker — periodic ANNOUNCE/PING,
// a known-peer map fed by PEERS_LIST/PEER_ONLINE/PEER_OFFLINE, and
// peer-to-peer SEARCH/file-fetch fan-out.
package client

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/codec"
	"github.com/majestrate/i2ptracker/discovery"
	"github.com/majestrate/i2ptracker/identity"
	"github.com/majestrate/i2ptracker/sam3"
)

const (
	announceInterval = 2 * time.Minute
	pingInterval     = 60 * time.Second
	searchTimeout    = 10 * time.Second
	fetchTimeout     = 30 * time.Second
)

// Sender is the send-only capability the client holds on the SAM
// transport, identical in shape to discovery.Sender.
type Sender interface {
	Send(dest sam3.I2PAddr, payload []byte) error
}

// Client is a peer participating in the discovery protocol: it
// maintains its own presence against a tracker and fans out searches
// to the peers it has learned about.
type Client struct {
	send Sender
	id   identity.Identity

	tracker              sam3.I2PAddr
	displayName          string
	filesCount           int64
	totalSize            int64
	streamingDestination string

	mtx   sync.Mutex
	peers map[string]discovery.PeerInfo

	pendingMtx sync.Mutex
	pending    map[string]chan discovery.SearchResult

	stop chan struct{}
}

// Profile describes what this client announces about itself.
type Profile struct {
	DisplayName          string
	FilesCount           int64
	TotalSize            int64
	StreamingDestination string
}

// New builds a Client bound to id's identity, sending through sender and
// announcing to tracker.
func New(sender Sender, id identity.Identity, tracker sam3.I2PAddr, profile Profile) *Client {
	return &Client{
		send:                 sender,
		id:                   id,
		tracker:              tracker,
		displayName:          profile.DisplayName,
		filesCount:           profile.FilesCount,
		totalSize:            profile.TotalSize,
		streamingDestination: profile.StreamingDestination,
		peers:                make(map[string]discovery.PeerInfo),
		pending:              make(map[string]chan discovery.SearchResult),
		stop:                 make(chan struct{}),
	}
}

// Start begins the periodic ANNOUNCE/PING tasks. It returns immediately;
// call Stop to end them.
func (c *Client) Start() {
	c.announce()
	go c.loop(announceInterval, c.announce)
	go c.loop(pingInterval, c.ping)
}

// Stop ends the periodic tasks.
func (c *Client) Stop() {
	close(c.stop)
}

func (c *Client) loop(interval time.Duration, task func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			task()
		case <-c.stop:
			return
		}
	}
}

func (c *Client) announce() {
	c.sendTo(c.tracker, discovery.Message{
		Kind:                 discovery.KindAnnounce,
		DisplayName:          c.displayName,
		FilesCount:           c.filesCount,
		TotalSize:            c.totalSize,
		StreamingDestination: c.streamingDestination,
	})
}

func (c *Client) ping() {
	c.sendTo(c.tracker, discovery.Message{Kind: discovery.KindPing})
}

// Peers returns a snapshot of the known-peer map.
func (c *Client) Peers() []discovery.PeerInfo {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	out := make([]discovery.PeerInfo, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p)
	}
	return out
}

// HandleDatagram processes one inbound signed envelope. Unlike the
// tracker's engine this client trusts its own tracker's broadcasts
// without maintaining a nonce store of its own — a peer has no swarm of
// subordinates to protect from replay, only its local known-peer cache.
func (c *Client) HandleDatagram(from sam3.I2PAddr, payload []byte) {
	if len(payload) == 0 || payload[0] != '{' {
		return
	}
	var env codec.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	if _, _, err := codec.Verify(env); err != nil {
		glog.V(1).Infof("client: rejected envelope from %s: %s", from.Base32(), err)
		return
	}
	var msg discovery.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return
	}

	switch msg.Kind {
	case discovery.KindPeersList:
		c.mtx.Lock()
		for _, p := range msg.Peers {
			c.peers[p.Destination] = p
		}
		c.mtx.Unlock()

	case discovery.KindPeerOnline:
		if msg.Peer != nil {
			c.mtx.Lock()
			c.peers[msg.Peer.Destination] = *msg.Peer
			c.mtx.Unlock()
		}

	case discovery.KindPeerOffline:
		if msg.Peer != nil {
			c.mtx.Lock()
			delete(c.peers, msg.Peer.Destination)
			c.mtx.Unlock()
		}

	case discovery.KindPong:
		// no-op: PING's only purpose is to keep lastSeen fresh server-side.

	case discovery.KindSearchResults:
		c.pendingMtx.Lock()
		ch := c.pending[msg.RequestID]
		c.pendingMtx.Unlock()
		if ch == nil {
			return
		}
		for _, r := range msg.Results {
			select {
			case ch <- r:
			default:
			}
		}

	default:
		glog.V(2).Infof("client: ignoring %s from %s", msg.Kind, from.Base32())
	}
}

// Search broadcasts a SEARCH to every known peer and aggregates
// SEARCH_RESULTS for up to searchTimeout before returning whatever
// arrived.
func (c *Client) Search(query string) []discovery.SearchResult {
	requestID := randomHex(8)
	results := make(chan discovery.SearchResult, 64)

	c.pendingMtx.Lock()
	c.pending[requestID] = results
	c.pendingMtx.Unlock()
	defer func() {
		c.pendingMtx.Lock()
		delete(c.pending, requestID)
		c.pendingMtx.Unlock()
	}()

	msg := discovery.Message{Kind: discovery.KindSearch, RequestID: requestID, Query: query}
	for _, p := range c.Peers() {
		c.sendTo(sam3.I2PAddr(p.Destination), msg)
	}

	var out []discovery.SearchResult
	deadline := time.After(searchTimeout)
	for {
		select {
		case r := <-results:
			out = append(out, r)
		case <-deadline:
			return out
		}
	}
}

// GetFiles sends a GET_FILES request to the peer at dest and returns
// without waiting for a reply. A FILES_LIST reply reaching HandleDatagram
// is not collected; it is logged and dropped like any other unhandled
// kind.
func (c *Client) GetFiles(dest sam3.I2PAddr) {
	c.sendTo(dest, discovery.Message{Kind: discovery.KindGetFiles})
}

// RequestFile asks dest for the named file.
func (c *Client) RequestFile(dest sam3.I2PAddr, name string) {
	c.sendTo(dest, discovery.Message{Kind: discovery.KindRequestFile, FileName: name})
}

func (c *Client) sendTo(dest sam3.I2PAddr, msg discovery.Message) {
	env, err := codec.Sign(msg, c.id)
	if err != nil {
		glog.Errorf("client: failed to sign outgoing %s: %s", msg.Kind, err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		glog.Errorf("client: failed to marshal outgoing %s: %s", msg.Kind, err)
		return
	}
	if err := c.send.Send(dest, raw); err != nil {
		glog.V(2).Infof("client: send to %s failed (best-effort): %s", dest.Base32(), err)
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
