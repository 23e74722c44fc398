// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package client

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"testing"

	"github.com/majestrate/i2ptracker/codec"
	"github.com/majestrate/i2ptracker/discovery"
	"github.com/majestrate/i2ptracker/identity"
	"github.com/majestrate/i2ptracker/sam3"
)

type nullSender struct{}

func (nullSender) Send(dest sam3.I2PAddr, payload []byte) error { return nil }

func testIdentity(t *testing.T) identity.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return identity.Identity{
		I2PKeys:    sam3.NewI2PKeys(sam3.I2PAddr("client-destination"), "priv"),
		SigningPub: pub,
		SigningKey: priv,
	}
}

func testClient(t *testing.T) *Client {
	t.Helper()
	id := testIdentity(t)
	return New(nullSender{}, id, sam3.I2PAddr("tracker-destination"), Profile{DisplayName: "me"})
}

func envelopeFor(t *testing.T, msg discovery.Message) []byte {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	sender := identity.Identity{
		I2PKeys:    sam3.NewI2PKeys(sam3.I2PAddr("other-peer"), "priv"),
		SigningPub: pub,
		SigningKey: priv,
	}
	env, err := codec.Sign(msg, sender)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestHandleDatagramPeersListPopulatesKnownPeers(t *testing.T) {
	c := testClient(t)
	msg := discovery.Message{
		Kind: discovery.KindPeersList,
		Peers: []discovery.PeerInfo{
			{Destination: "peer-a", DisplayName: "alice"},
			{Destination: "peer-b", DisplayName: "bob"},
		},
	}
	c.HandleDatagram(sam3.I2PAddr("tracker-destination"), envelopeFor(t, msg))

	peers := c.Peers()
	if len(peers) != 2 {
		t.Fatalf("len(Peers()) = %d, want 2", len(peers))
	}
}

func TestHandleDatagramPeerOnlineThenOffline(t *testing.T) {
	c := testClient(t)
	online := discovery.Message{Kind: discovery.KindPeerOnline, Peer: &discovery.PeerInfo{Destination: "peer-a", DisplayName: "alice"}}
	c.HandleDatagram(sam3.I2PAddr("tracker-destination"), envelopeFor(t, online))

	if len(c.Peers()) != 1 {
		t.Fatalf("expected peer-a to be known after PEER_ONLINE")
	}

	offline := discovery.Message{Kind: discovery.KindPeerOffline, Peer: &discovery.PeerInfo{Destination: "peer-a"}}
	c.HandleDatagram(sam3.I2PAddr("tracker-destination"), envelopeFor(t, offline))

	if len(c.Peers()) != 0 {
		t.Fatal("expected peer-a to be forgotten after PEER_OFFLINE")
	}
}

func TestHandleDatagramSearchResultsRoutedToPendingRequest(t *testing.T) {
	c := testClient(t)

	requestID := "fixed-request-id"
	results := make(chan discovery.SearchResult, 4)
	c.pendingMtx.Lock()
	c.pending[requestID] = results
	c.pendingMtx.Unlock()

	msg := discovery.Message{
		Kind:      discovery.KindSearchResults,
		RequestID: requestID,
		Results:   []discovery.SearchResult{{Destination: "peer-a", FileName: "movie.mkv"}},
	}
	c.HandleDatagram(sam3.I2PAddr("peer-a"), envelopeFor(t, msg))

	select {
	case r := <-results:
		if r.FileName != "movie.mkv" {
			t.Fatalf("FileName = %q, want movie.mkv", r.FileName)
		}
	default:
		t.Fatal("expected a result to be delivered to the pending channel")
	}
}

func TestHandleDatagramSearchResultsIgnoredWithoutPendingRequest(t *testing.T) {
	c := testClient(t)
	msg := discovery.Message{
		Kind:      discovery.KindSearchResults,
		RequestID: "nobody-is-waiting",
		Results:   []discovery.SearchResult{{Destination: "peer-a", FileName: "movie.mkv"}},
	}
	// Must not panic or block when no one is waiting on this request ID.
	c.HandleDatagram(sam3.I2PAddr("peer-a"), envelopeFor(t, msg))
}
