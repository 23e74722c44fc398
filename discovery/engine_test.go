// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package discovery

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/majestrate/i2ptracker/codec"
	"github.com/majestrate/i2ptracker/config"
	"github.com/majestrate/i2ptracker/identity"
	"github.com/majestrate/i2ptracker/sam3"
	"github.com/majestrate/i2ptracker/store"
)

// captureSender records every outbound datagram instead of touching a
// real SAM session.
type captureSender struct {
	mtx  sync.Mutex
	sent []sentDatagram
}

type sentDatagram struct {
	dest    sam3.I2PAddr
	payload []byte
}

func (c *captureSender) Send(dest sam3.I2PAddr, payload []byte) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.sent = append(c.sent, sentDatagram{dest: dest, payload: payload})
	return nil
}

func (c *captureSender) messages(t *testing.T) []Message {
	t.Helper()
	c.mtx.Lock()
	defer c.mtx.Unlock()
	var out []Message
	for _, d := range c.sent {
		var env codec.Envelope
		if err := json.Unmarshal(d.payload, &env); err != nil {
			t.Fatalf("sent payload is not a valid envelope: %s", err)
		}
		var msg Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatalf("sent envelope data is not a valid message: %s", err)
		}
		out = append(out, msg)
	}
	return out
}

func testIdentity(t *testing.T, dest string) identity.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return identity.Identity{
		I2PKeys:    sam3.NewI2PKeys(sam3.I2PAddr(dest), "priv"),
		SigningPub: pub,
		SigningKey: priv,
	}
}

func testEngine(t *testing.T) (*Engine, *store.Store, *captureSender) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	send := &captureSender{}
	id := testIdentity(t, "tracker-destination")
	dconf := config.DiscoveryConfig{
		PeerTimeout:            config.Duration{Duration: time.Hour},
		MaxPeersPerResponse:    100,
		MaxDHTNodesPerResponse: 50,
		AllowLegacyEnvelopes:   true,
	}
	return New(st, send, id, dconf, nil), st, send
}

func signedDatagram(t *testing.T, from identity.Identity, msg Message) []byte {
	t.Helper()
	env, err := codec.Sign(msg, from)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestHandleDatagramAnnounceRegistersPeerAndBroadcasts(t *testing.T) {
	e, st, send := testEngine(t)

	peerA := testIdentity(t, "peer-a")
	peerB := testIdentity(t, "peer-b")

	e.HandleDatagram(sam3.I2PAddr("peer-a"), signedDatagram(t, peerA, Message{Kind: KindAnnounce, DisplayName: "alice"}))

	p, ok, err := st.GetPeer(string(peerA.Destination()))
	if err != nil || !ok {
		t.Fatalf("expected peer-a to be registered: ok=%v err=%v", ok, err)
	}
	if p.DisplayName != "alice" {
		t.Fatalf("DisplayName = %q, want alice", p.DisplayName)
	}

	e.HandleDatagram(sam3.I2PAddr("peer-b"), signedDatagram(t, peerB, Message{Kind: KindAnnounce, DisplayName: "bob"}))

	var sawPeerOnlineForBob bool
	for _, msg := range send.messages(t) {
		if msg.Kind == KindPeerOnline && msg.Peer != nil && msg.Peer.DisplayName == "bob" {
			sawPeerOnlineForBob = true
		}
	}
	if !sawPeerOnlineForBob {
		t.Fatal("expected a PEER_ONLINE broadcast for bob's arrival to reach peer-a")
	}
}

func TestHandleDatagramRejectsReplayedNonce(t *testing.T) {
	e, st, _ := testEngine(t)
	peerA := testIdentity(t, "peer-a")

	raw := signedDatagram(t, peerA, Message{Kind: KindPing})
	e.HandleDatagram(sam3.I2PAddr("peer-a"), raw)

	before, _, err := st.GetPeer(string(peerA.Destination()))
	if err != nil {
		t.Fatal(err)
	}

	// Same envelope, same nonce: the second delivery must never reach
	// dispatch, so lastSeen should not move.
	e.HandleDatagram(sam3.I2PAddr("peer-a"), raw)

	after, _, err := st.GetPeer(string(peerA.Destination()))
	if err != nil {
		t.Fatal(err)
	}
	if after.LastSeen != before.LastSeen {
		t.Fatal("a replayed nonce must not be processed a second time")
	}
}

func TestHandleDatagramRejectsSigningKeyHijack(t *testing.T) {
	e, st, _ := testEngine(t)
	original := testIdentity(t, "peer-a")
	attacker := testIdentity(t, "peer-a") // same destination, different signing key

	e.HandleDatagram(sam3.I2PAddr("peer-a"), signedDatagram(t, original, Message{Kind: KindAnnounce, DisplayName: "alice"}))
	e.HandleDatagram(sam3.I2PAddr("peer-a"), signedDatagram(t, attacker, Message{Kind: KindAnnounce, DisplayName: "mallory"}))

	p, ok, err := st.GetPeer(string(original.Destination()))
	if err != nil || !ok {
		t.Fatal(err)
	}
	if p.DisplayName != "alice" {
		t.Fatalf("DisplayName = %q, want the original binding preserved (alice), not the hijack attempt", p.DisplayName)
	}
}
