// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package codec

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/majestrate/i2ptracker/identity"
	"github.com/majestrate/i2ptracker/sam3"
)

func testIdentity(t *testing.T) identity.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	keys := sam3.NewI2PKeys(sam3.I2PAddr("test-destination-"+t.Name()), "priv-blob")
	return identity.Identity{I2PKeys: keys, SigningPub: pub, SigningKey: priv}
}

type pingMessage struct {
	Kind string `json:"kind"`
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id := testIdentity(t)
	env, err := Sign(pingMessage{Kind: "PING"}, id)
	if err != nil {
		t.Fatalf("Sign: %s", err)
	}
	if !env.Signed() {
		t.Fatal("expected a signed envelope")
	}
	if env.From != string(id.Destination()) {
		t.Fatalf("_from = %q, want %q", env.From, id.Destination())
	}

	key, verified, err := Verify(env)
	if err != nil {
		t.Fatalf("Verify: %s", err)
	}
	if !verified {
		t.Fatal("expected verified = true")
	}
	if string(key) != string(id.SigningPub) {
		t.Fatal("returned signing key does not match signer")
	}

	var msg pingMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("unmarshal data: %s", err)
	}
	if msg.Kind != "PING" {
		t.Fatalf("kind = %q, want PING", msg.Kind)
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	id := testIdentity(t)
	env, err := Sign(pingMessage{Kind: "PING"}, id)
	if err != nil {
		t.Fatal(err)
	}
	env.Data = json.RawMessage(`{"kind":"ANNOUNCE"}`)

	if _, verified, err := Verify(env); verified || err != ErrBadSignature {
		t.Fatalf("got verified=%v err=%v, want verified=false err=ErrBadSignature", verified, err)
	}
}

func TestVerifyRejectsExpiredTimestamp(t *testing.T) {
	id := testIdentity(t)
	env, err := Sign(pingMessage{Kind: "PING"}, id)
	if err != nil {
		t.Fatal(err)
	}
	env.Timestamp = time.Now().Add(-time.Hour).UnixNano() / int64(time.Millisecond)

	if _, _, err := Verify(env); err != ErrExpiredTimestamp {
		t.Fatalf("got %v, want ErrExpiredTimestamp", err)
	}
}

func TestVerifyAcceptsLegacyUnsignedEnvelope(t *testing.T) {
	env := Envelope{
		Data: json.RawMessage(`{"kind":"ANNOUNCE"}`),
		From: "legacy-peer-destination",
	}
	key, verified, err := Verify(env)
	if err != nil {
		t.Fatalf("Verify: %s", err)
	}
	if verified {
		t.Fatal("expected verified = false for an unsigned envelope")
	}
	if key != nil {
		t.Fatal("expected no signing key for an unsigned envelope")
	}
}

func TestVerifyRejectsMissingSender(t *testing.T) {
	env := Envelope{Data: json.RawMessage(`{}`)}
	if _, _, err := Verify(env); err != ErrMissingSender {
		t.Fatalf("got %v, want ErrMissingSender", err)
	}
}
