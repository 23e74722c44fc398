// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package codec implements the signed-message envelope used by the
// discovery protocol: sign, verify, and the legacy unsigned pass-through.
// Replay protection is deliberately not a codec concern; see the
// discovery package's nonce checks against the peer store.
package codec

import (
	"bytes"
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/majestrate/i2ptracker/identity"
)

// MaxClockSkew bounds how stale or how far in the future a timestamp may
// be before verify rejects it.
const MaxClockSkew = 10 * time.Minute

// Errors returned by Verify. Every engine-visible failure is one of these
// four, matching the codec's contract.
var (
	ErrMissingSender    = ClientError("codec: missing sender")
	ErrBadSignature     = ClientError("codec: bad signature")
	ErrExpiredTimestamp = ClientError("codec: expired timestamp")
	ErrMalformedEnvelope = ClientError("codec: malformed envelope")
)

// ClientError marks codec failures that are expected traffic, not bugs.
type ClientError string

func (e ClientError) Error() string { return string(e) }

// Envelope is the wire format carried over every SAM datagram.
type Envelope struct {
	Data       json.RawMessage `json:"data"`
	Nonce      string          `json:"nonce,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
	Signature  string          `json:"signature,omitempty"`
	SigningKey string          `json:"signingKey,omitempty"`
	From       string          `json:"_from"`
}

// Signed reports whether an envelope carries the full signature triple.
// Envelopes missing any of the three take the legacy unsigned path.
func (e Envelope) Signed() bool {
	return e.Signature != "" && e.SigningKey != "" && e.Nonce != ""
}

// canonical builds the exact byte string that gets signed:
// data || nonce || timestamp, concatenated with no separator, matching the
// wire description in the discovery protocol's envelope spec.
func canonical(data json.RawMessage, nonce string, timestamp int64) []byte {
	var buf bytes.Buffer
	buf.Write(data)
	buf.WriteString(nonce)
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	return buf.Bytes()
}

// NewNonce returns a fresh 128-bit random nonce, hex-encoded.
func NewNonce() string {
	b := make([]byte, 16)
	if _, err := crand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// Sign builds a signed envelope carrying data, stamped _from id's
// destination and signed with id's Ed25519 signing key.
func Sign(data interface{}, id identity.Identity) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	nonce := NewNonce()
	ts := nowMillis()
	sig := ed25519.Sign(id.SigningKey, canonical(raw, nonce, ts))
	return Envelope{
		Data:       raw,
		Nonce:      nonce,
		Timestamp:  ts,
		Signature:  base64.StdEncoding.EncodeToString(sig),
		SigningKey: base64.StdEncoding.EncodeToString(id.SigningPub),
		From:       string(id.Destination()),
	}, nil
}

// Verify checks an envelope's signature and timestamp and returns the
// decoded signing key on success. Callers are responsible for nonce replay
// checks and signing-key binding checks (both require the peer store).
//
// An unsigned (legacy) envelope is accepted here with verified=false and no
// error, so callers can branch on the "log and process as unverified"
// path described by the protocol's backward-compatibility rule.
func Verify(env Envelope) (signingKey ed25519.PublicKey, verified bool, err error) {
	if env.From == "" {
		return nil, false, ErrMissingSender
	}
	if !env.Signed() {
		return nil, false, nil
	}
	if env.Timestamp == 0 {
		return nil, false, ErrMalformedEnvelope
	}
	skew := nowMillis() - env.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Millisecond > MaxClockSkew {
		return nil, false, ErrExpiredTimestamp
	}
	key, err := base64.StdEncoding.DecodeString(env.SigningKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, false, ErrMalformedEnvelope
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, false, ErrMalformedEnvelope
	}
	msg := canonical(env.Data, env.Nonce, env.Timestamp)
	if !ed25519.Verify(ed25519.PublicKey(key), msg, sig) {
		return nil, false, ErrBadSignature
	}
	return ed25519.PublicKey(key), true, nil
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
