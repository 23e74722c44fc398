// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package discovery implements the signed-datagram peer-discovery engine:
// the 11 message kinds, validation pipeline, presence broadcast, and
// Kademlia-style DHT bootstrap.
package discovery

// Kind names every message type carried in an envelope's data field.
type Kind string

// The 11 message kinds. SEARCH and its siblings are peer-to-peer
// messages the tracker never originates or consumes; it only logs and
// drops them if they happen to arrive on its datagram session.
const (
	KindAnnounce      Kind = "ANNOUNCE"
	KindGetPeers      Kind = "GET_PEERS"
	KindPing          Kind = "PING"
	KindPong          Kind = "PONG"
	KindDisconnect    Kind = "DISCONNECT"
	KindGetDHTNodes   Kind = "GET_DHT_NODES"
	KindPeersList     Kind = "PEERS_LIST"
	KindDHTNodesList  Kind = "DHT_NODES_LIST"
	KindPeerOnline    Kind = "PEER_ONLINE"
	KindPeerOffline   Kind = "PEER_OFFLINE"
	KindSearch        Kind = "SEARCH"
	KindSearchResults Kind = "SEARCH_RESULTS"
	KindGetFiles      Kind = "GET_FILES"
	KindFilesList     Kind = "FILES_LIST"
	KindRequestFile   Kind = "REQUEST_FILE"
	KindFileData      Kind = "FILE_DATA"
)

// peerToPeerKinds never reach a handler; the tracker logs and drops them.
var peerToPeerKinds = map[Kind]bool{
	KindSearch:        true,
	KindSearchResults: true,
	KindGetFiles:      true,
	KindFilesList:     true,
	KindRequestFile:   true,
	KindFileData:      true,
}

// Message is the envelope's decoded "data" payload: a tagged sum type
// over the 11 kinds. Only the Kind and the fields relevant to it are
// populated for any given message.
type Message struct {
	Kind Kind `json:"kind"`

	// ANNOUNCE / presence fields.
	DisplayName          string `json:"displayName,omitempty"`
	FilesCount           int64  `json:"filesCount,omitempty"`
	TotalSize            int64  `json:"totalSize,omitempty"`
	StreamingDestination string `json:"streamingDestination,omitempty"`

	// PEERS_LIST / DHT_NODES_LIST payloads.
	Peers    []PeerInfo `json:"peers,omitempty"`
	DHTNodes []NodeInfo `json:"dhtNodes,omitempty"`

	// PEER_ONLINE / PEER_OFFLINE carry a single delta.
	Peer *PeerInfo `json:"peer,omitempty"`

	// SEARCH / SEARCH_RESULTS fan-out (peer-to-peer; the tracker only
	// ever logs and drops these — see peerToPeerKinds).
	RequestID string         `json:"requestId,omitempty"`
	Query     string         `json:"query,omitempty"`
	Results   []SearchResult `json:"results,omitempty"`

	// GET_FILES / FILES_LIST / REQUEST_FILE / FILE_DATA, also
	// peer-to-peer only.
	Files    []string `json:"files,omitempty"`
	FileName string   `json:"fileName,omitempty"`
	FileData []byte   `json:"fileData,omitempty"`
}

// SearchResult is one hit returned in a SEARCH_RESULTS message.
type SearchResult struct {
	Destination string `json:"destination"`
	FileName    string `json:"fileName"`
}

// PeerInfo is the wire representation of a peer record, shared by
// PEERS_LIST, PEER_ONLINE, and PEER_OFFLINE.
type PeerInfo struct {
	Destination          string `json:"destination"`
	B32Address           string `json:"b32Address"`
	DisplayName          string `json:"displayName"`
	FilesCount           int64  `json:"filesCount"`
	TotalSize            int64  `json:"totalSize"`
	LastSeen             int64  `json:"lastSeen"`
	StreamingDestination string `json:"streamingDestination,omitempty"`
}

// NodeInfo is the wire representation of a DHT-bootstrap record.
type NodeInfo struct {
	NodeID      string `json:"nodeId"`
	Destination string `json:"destination"`
	LastSeen    int64  `json:"lastSeen"`
}
