// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package discovery

import (
	"encoding/base64"
	"encoding/json"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/codec"
	"github.com/majestrate/i2ptracker/sam3"
	"github.com/majestrate/i2ptracker/stats"
	"github.com/majestrate/i2ptracker/store"
)

func (e *Engine) handleAnnounce(from string, msg Message, signingKey []byte) {
	now := nowMillis()
	_, existed, err := e.store.GetPeer(from)
	if err != nil {
		glog.Errorf("discovery: lookup failed for %s: %s", from, err)
		return
	}

	displayName := msg.DisplayName
	if displayName == "" {
		displayName = "Unknown"
	}

	p := store.Peer{
		Destination:          from,
		B32Address:           sam3.I2PAddr(from).Base32(),
		DisplayName:          displayName,
		FilesCount:           msg.FilesCount,
		TotalSize:            msg.TotalSize,
		LastSeen:             now,
		StreamingDestination: msg.StreamingDestination,
	}
	if signingKey != nil {
		p.SigningKey = base64.StdEncoding.EncodeToString(signingKey)
	}
	if err := e.store.UpsertPeer(p); err != nil {
		glog.Errorf("discovery: failed to store peer %s: %s", from, err)
		return
	}

	stats.RecordEvent(stats.DiscoveryAnnounce)

	if !existed {
		glog.Infof("discovery: new peer %s (%s)", p.B32Address, displayName)
		e.broadcastPresence(KindPeerOnline, from, p)
	}

	e.replyPeersList(from)
	e.replyDHTNodesList(from)
}

func (e *Engine) handleGetPeers(from string) {
	e.touchOrRegister(from)
	e.replyPeersList(from)
}

func (e *Engine) handlePing(from string) {
	e.touchOrRegister(from)
	e.sendMessage(from, Message{Kind: KindPong})
}

func (e *Engine) handleDisconnect(from string) {
	p, ok, err := e.store.GetPeer(from)
	if err != nil {
		glog.Errorf("discovery: lookup failed for %s: %s", from, err)
		return
	}
	if !ok {
		return
	}
	if err := e.store.DeletePeer(from); err != nil {
		glog.Errorf("discovery: failed to delete peer %s: %s", from, err)
		return
	}
	glog.Infof("discovery: peer %s disconnected", p.B32Address)
	e.broadcastPresence(KindPeerOffline, from, p)
}

func (e *Engine) handleGetDHTNodes(from string) {
	e.replyDHTNodesList(from)
}

// touchOrRegister refreshes lastSeen for an existing peer, or registers a
// bare-minimum record if this is the first contact from this destination
// (GET_PEERS and PING auto-register per the protocol table).
func (e *Engine) touchOrRegister(from string) {
	now := nowMillis()
	_, ok, err := e.store.GetPeer(from)
	if err != nil {
		glog.Errorf("discovery: lookup failed for %s: %s", from, err)
		return
	}
	if ok {
		if err := e.store.Touch(from, now); err != nil {
			glog.Errorf("discovery: failed to touch peer %s: %s", from, err)
		}
		return
	}
	p := store.Peer{
		Destination: from,
		B32Address:  sam3.I2PAddr(from).Base32(),
		DisplayName: "Unknown",
		LastSeen:    now,
	}
	if err := e.store.UpsertPeer(p); err != nil {
		glog.Errorf("discovery: failed to auto-register peer %s: %s", from, err)
		return
	}
	e.broadcastPresence(KindPeerOnline, from, p)
}

func (e *Engine) replyPeersList(to string) {
	peers, err := e.store.GetActivePeers(to, e.cutoff(), e.conf.MaxPeersPerResponse)
	if err != nil {
		glog.Errorf("discovery: failed to list peers for %s: %s", to, err)
		return
	}
	e.sendMessage(to, Message{Kind: KindPeersList, Peers: toPeerInfos(peers)})
}

func (e *Engine) replyDHTNodesList(to string) {
	nodes, err := e.store.DHTNodes(e.cutoff(), e.conf.MaxDHTNodesPerResponse)
	if err != nil {
		glog.Errorf("discovery: failed to list DHT nodes for %s: %s", to, err)
		return
	}
	if len(nodes) == 0 {
		nodes = e.synthesizeDHTNodes()
	}
	e.sendMessage(to, Message{Kind: KindDHTNodesList, DHTNodes: toNodeInfos(nodes)})
}

// synthesizeDHTNodes builds bootstrap candidates straight from the active
// peer set when no dedicated DHT-node records exist yet.
func (e *Engine) synthesizeDHTNodes() []store.DHTNode {
	peers, err := e.store.GetActivePeers("", e.cutoff(), e.conf.MaxDHTNodesPerResponse)
	if err != nil {
		return nil
	}
	nodes := make([]store.DHTNode, 0, len(peers))
	for _, p := range peers {
		nodes = append(nodes, store.DHTNode{
			NodeID:      p.B32Address,
			Destination: p.Destination,
			LastSeen:    p.LastSeen,
		})
	}
	return nodes
}

// BroadcastOffline announces a peer's departure to the rest of the swarm.
// Used by the supervisor's periodic sweep once it has deleted a peer for
// inactivity — the store has no way to raise this itself.
func (e *Engine) BroadcastOffline(p store.Peer) {
	e.broadcastPresence(KindPeerOffline, p.Destination, p)
}

// broadcastPresence fans out a presence delta to every active peer except
// subject. No per-subscriber queues; lost datagrams are not retransmitted.
func (e *Engine) broadcastPresence(kind Kind, subject string, p store.Peer) {
	peers, err := e.store.GetActivePeers(subject, e.cutoff(), 0)
	if err != nil {
		glog.Errorf("discovery: broadcast peer list failed: %s", err)
		return
	}
	info := toPeerInfo(p)
	msg := Message{Kind: kind, Peer: &info}
	for _, peer := range peers {
		e.sendMessage(peer.Destination, msg)
		stats.RecordEvent(stats.DiscoveryBroadcastSent)
	}
	e.recordArchival(p.Destination, p.B32Address, string(kind))
}

// sendMessage signs msg with this node's identity and sends it to dest.
// Datagram send failures are logged and otherwise ignored — the SAM
// transport's send is best-effort by design.
func (e *Engine) sendMessage(dest string, msg Message) {
	env, err := codec.Sign(msg, e.id)
	if err != nil {
		glog.Errorf("discovery: failed to sign outgoing %s: %s", msg.Kind, err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		glog.Errorf("discovery: failed to marshal outgoing %s: %s", msg.Kind, err)
		return
	}
	if err := e.send.Send(sam3.I2PAddr(dest), raw); err != nil {
		glog.V(2).Infof("discovery: send to %s failed (best-effort): %s", dest, err)
	}
}

func toPeerInfo(p store.Peer) PeerInfo {
	return PeerInfo{
		Destination:          p.Destination,
		B32Address:           p.B32Address,
		DisplayName:          p.DisplayName,
		FilesCount:           p.FilesCount,
		TotalSize:            p.TotalSize,
		LastSeen:             p.LastSeen,
		StreamingDestination: p.StreamingDestination,
	}
}

func toPeerInfos(peers []store.Peer) []PeerInfo {
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, toPeerInfo(p))
	}
	return out
}

func toNodeInfos(nodes []store.DHTNode) []NodeInfo {
	out := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeInfo{NodeID: n.NodeID, Destination: n.Destination, LastSeen: n.LastSeen})
	}
	return out
}
