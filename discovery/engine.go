// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package discovery

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/codec"
	"github.com/majestrate/i2ptracker/config"
	"github.com/majestrate/i2ptracker/identity"
	"github.com/majestrate/i2ptracker/sam3"
	"github.com/majestrate/i2ptracker/stats"
	"github.com/majestrate/i2ptracker/store"
)

// Sender is the send-only capability the engine holds on the SAM
// transport. The engine never owns the transport; the supervisor does.
type Sender interface {
	Send(dest sam3.I2PAddr, payload []byte) error
}

// ArchivalSink optionally records discovery presence events for long-term
// operator reporting. It is never consulted for live peer state.
type ArchivalSink interface {
	RecordPresence(destination, b32Address, kind string) error
}

// Engine dispatches the 11 discovery message kinds, mutating the peer
// store and fanning out presence deltas. It holds no peer state itself;
// every operation queries or mutates store.Store directly.
type Engine struct {
	store    *store.Store
	send     Sender
	id       identity.Identity
	conf     config.DiscoveryConfig
	archival ArchivalSink
}

// New builds an Engine bound to st for storage and sender for outbound
// datagrams, using id's signing key to sign every message it originates.
// archival may be nil, in which case presence events are not recorded
// anywhere beyond the in-memory peer store.
func New(st *store.Store, sender Sender, id identity.Identity, conf config.DiscoveryConfig, archival ArchivalSink) *Engine {
	return &Engine{store: st, send: sender, id: id, conf: conf, archival: archival}
}

// recordArchival best-effort forwards a presence delta to the archival
// sink; failures are logged and never surfaced to the originating peer.
func (e *Engine) recordArchival(destination, b32Address, kind string) {
	if e.archival == nil {
		return
	}
	if err := e.archival.RecordPresence(destination, b32Address, kind); err != nil {
		glog.Errorf("discovery: archival record failed: %s", err)
	}
}

// HandleDatagram is the SAM transport's on_data callback: it parses,
// validates, and dispatches a single inbound datagram.
func (e *Engine) HandleDatagram(from sam3.I2PAddr, payload []byte) {
	if len(payload) == 0 || payload[0] != '{' {
		glog.V(2).Info("discovery: dropped non-JSON datagram from ", from.Base32())
		return
	}

	var env codec.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		glog.V(2).Infof("discovery: malformed envelope from %s: %s", from.Base32(), err)
		return
	}

	signingKey, verified, err := codec.Verify(env)
	if err != nil {
		glog.V(1).Infof("discovery: rejected envelope from %s: %s", from.Base32(), err)
		return
	}
	if !verified && !e.conf.AllowLegacyEnvelopes {
		glog.V(1).Info("discovery: dropped legacy envelope (disabled) from ", from.Base32())
		return
	}
	if !verified {
		glog.Warningf("discovery: accepting legacy unsigned envelope from %s", from.Base32())
		stats.RecordEvent(stats.DiscoveryLegacyEnvelope)
	}

	if env.From == "" {
		glog.V(1).Info("discovery: envelope missing _from")
		return
	}

	if env.Signed() {
		used, err := e.store.IsNonceUsed(env.Nonce)
		if err != nil {
			glog.Errorf("discovery: nonce lookup failed: %s", err)
			return
		}
		if used {
			glog.V(1).Infof("discovery: nonce already used for %s", env.From)
			stats.RecordEvent(stats.DiscoveryNonceReplayed)
			return
		}
	}

	var msg Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		glog.V(2).Infof("discovery: malformed message data from %s: %s", env.From, err)
		return
	}

	if msg.Kind == KindAnnounce {
		if err := e.checkSigningBinding(env.From, signingKey); err != nil {
			glog.Warningf("discovery: %s", err)
			stats.RecordEvent(stats.DiscoverySigningRejected)
			return
		}
	}

	if env.Signed() {
		if err := e.store.MarkNonceUsed(env.Nonce, nowMillis()); err != nil {
			glog.Errorf("discovery: failed to mark nonce used: %s", err)
		}
	}

	if peerToPeerKinds[msg.Kind] {
		glog.V(2).Infof("discovery: passing through peer-to-peer message %s from %s", msg.Kind, env.From)
		return
	}

	e.dispatch(env.From, msg, signingKey)
}

// checkSigningBinding enforces the signing-key hijack invariant: once a
// peer has bound a key, a later message purporting to be from that
// destination with a different key is rejected and the existing record
// is left untouched.
func (e *Engine) checkSigningBinding(from string, signingKey []byte) error {
	if signingKey == nil {
		return nil // legacy unsigned ANNOUNCE carries no key to check
	}
	existing, ok, err := e.store.GetPeer(from)
	if err != nil {
		return err
	}
	if !ok || existing.SigningKey == "" {
		return nil
	}
	want := base64.StdEncoding.EncodeToString(signingKey)
	if existing.SigningKey != want {
		return fmt.Errorf("signing key mismatch for %s: possible hijack attempt", from)
	}
	return nil
}

func (e *Engine) dispatch(from string, msg Message, signingKey []byte) {
	switch msg.Kind {
	case KindAnnounce:
		e.handleAnnounce(from, msg, signingKey)
	case KindGetPeers:
		e.handleGetPeers(from)
	case KindPing:
		e.handlePing(from)
	case KindDisconnect:
		e.handleDisconnect(from)
	case KindGetDHTNodes:
		e.handleGetDHTNodes(from)
	case KindPong, KindPeersList, KindDHTNodesList, KindPeerOnline, KindPeerOffline:
		glog.V(2).Infof("discovery: ignoring tracker-originated kind %s received from %s", msg.Kind, from)
	default:
		glog.V(1).Infof("discovery: unknown message kind %q from %s", msg.Kind, from)
	}
}

func nowMillis() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

func (e *Engine) cutoff() int64 {
	return nowMillis() - e.conf.PeerTimeout.Milliseconds()
}

