// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package store implements the embedded SQL peer store shared by the
// discovery engine, the BEP3 engine, and the periodic maintenance timers.
// It owns every record: peers, used nonces, and DHT-bootstrap nodes.
package store

import (
	"database/sql"
	"math/rand"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/golang/glog"
)

// schema pins the exact column names from the peer store's external
// contract: other tools snapshot and inspect tracker.db directly.
const schema = `
CREATE TABLE IF NOT EXISTS peers (
	destination TEXT PRIMARY KEY,
	b32Address TEXT NOT NULL,
	displayName TEXT NOT NULL DEFAULT 'Unknown',
	filesCount INTEGER NOT NULL DEFAULT 0,
	totalSize INTEGER NOT NULL DEFAULT 0,
	lastSeen INTEGER NOT NULL,
	streamingDestination TEXT,
	signingKey TEXT
);
CREATE INDEX IF NOT EXISTS idx_peers_lastSeen ON peers(lastSeen);
CREATE INDEX IF NOT EXISTS idx_peers_b32Address ON peers(b32Address);

CREATE TABLE IF NOT EXISTS used_nonces (
	nonce TEXT PRIMARY KEY,
	createdAt INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nonces_createdAt ON used_nonces(createdAt);

CREATE TABLE IF NOT EXISTS dht_nodes (
	nodeId TEXT PRIMARY KEY,
	destination TEXT NOT NULL,
	lastSeen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dht_lastSeen ON dht_nodes(lastSeen);
`

// Peer is a single discovery-protocol peer record.
type Peer struct {
	Destination           string
	B32Address             string
	DisplayName            string
	FilesCount             int64
	TotalSize              int64
	LastSeen               int64
	StreamingDestination   string
	SigningKey             string
}

// DHTNode is a lightweight Kademlia-style bootstrap record: an opaque
// node-id plus destination plus last-seen, not a routing table.
type DHTNode struct {
	NodeID      string
	Destination string
	LastSeen    int64
}

// Store is the single source of truth for peer, nonce, and DHT-node
// state. The discovery engine and BEP3 engine hold no long-lived
// pointers into it; every operation is a fresh query against the DB.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the SQLite database at path, enables
// WAL journaling for concurrent write throughput, and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // one connection serialises every statement; sqlite3 is single-writer anyway
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close checkpoints the WAL and closes the underlying database handle.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Snapshot forces a WAL checkpoint, folding outstanding writes back into
// tracker.db. Safe to call while serving traffic.
func (s *Store) Snapshot() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
	if err != nil {
		glog.Errorf("store: snapshot failed: %s", err)
	}
	return err
}

// UpsertPeer inserts p or updates its dynamic fields. An existing bound
// signing key is never overwritten with an empty one — see the
// signing-key hijack invariant enforced one layer up in discovery.
func (s *Store) UpsertPeer(p Peer) error {
	_, err := s.db.Exec(`
		INSERT INTO peers (destination, b32Address, displayName, filesCount, totalSize, lastSeen, streamingDestination, signingKey)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(destination) DO UPDATE SET
			b32Address=excluded.b32Address,
			displayName=excluded.displayName,
			filesCount=excluded.filesCount,
			totalSize=excluded.totalSize,
			lastSeen=excluded.lastSeen,
			streamingDestination=excluded.streamingDestination,
			signingKey=CASE WHEN excluded.signingKey = '' THEN peers.signingKey ELSE excluded.signingKey END
	`, p.Destination, p.B32Address, p.DisplayName, p.FilesCount, p.TotalSize, p.LastSeen, p.StreamingDestination, p.SigningKey)
	return err
}

// GetPeer returns the peer record for destination, or ok=false if absent.
func (s *Store) GetPeer(destination string) (p Peer, ok bool, err error) {
	row := s.db.QueryRow(`SELECT destination, b32Address, displayName, filesCount, totalSize, lastSeen, streamingDestination, signingKey FROM peers WHERE destination = ?`, destination)
	err = row.Scan(&p.Destination, &p.B32Address, &p.DisplayName, &p.FilesCount, &p.TotalSize, &p.LastSeen, &p.StreamingDestination, &p.SigningKey)
	if err == sql.ErrNoRows {
		return Peer{}, false, nil
	}
	if err != nil {
		return Peer{}, false, err
	}
	return p, true, nil
}

// DeletePeer removes destination from the store.
func (s *Store) DeletePeer(destination string) error {
	_, err := s.db.Exec(`DELETE FROM peers WHERE destination = ?`, destination)
	return err
}

// Touch refreshes a peer's lastSeen without touching any other field.
func (s *Store) Touch(destination string, now int64) error {
	_, err := s.db.Exec(`UPDATE peers SET lastSeen = ? WHERE destination = ?`, now, destination)
	return err
}

// GetActivePeers returns up to limit peers with lastSeen > cutoff,
// excluding exclude, in randomised order for load distribution.
func (s *Store) GetActivePeers(exclude string, cutoff int64, limit int) ([]Peer, error) {
	rows, err := s.db.Query(`
		SELECT destination, b32Address, displayName, filesCount, totalSize, lastSeen, streamingDestination, signingKey
		FROM peers WHERE lastSeen > ? AND destination != ?
	`, cutoff, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Peer
	for rows.Next() {
		var p Peer
		if err := rows.Scan(&p.Destination, &p.B32Address, &p.DisplayName, &p.FilesCount, &p.TotalSize, &p.LastSeen, &p.StreamingDestination, &p.SigningKey); err != nil {
			return nil, err
		}
		all = append(all, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Sweep deletes every peer with lastSeen <= cutoff and returns the
// deleted rows, so the caller can broadcast PEER_OFFLINE for exactly the
// set that was present at the moment of sweep.
func (s *Store) Sweep(cutoff int64) ([]Peer, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT destination, b32Address, displayName, filesCount, totalSize, lastSeen, streamingDestination, signingKey FROM peers WHERE lastSeen <= ?`, cutoff)
	if err != nil {
		return nil, err
	}
	var dead []Peer
	for rows.Next() {
		var p Peer
		if err := rows.Scan(&p.Destination, &p.B32Address, &p.DisplayName, &p.FilesCount, &p.TotalSize, &p.LastSeen, &p.StreamingDestination, &p.SigningKey); err != nil {
			rows.Close()
			return nil, err
		}
		dead = append(dead, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`DELETE FROM peers WHERE lastSeen <= ?`, cutoff); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return dead, nil
}

// RegisterLocalPeer inserts the tracker's own BEP3 front-end destination
// directly into the store without a signed envelope. Used only by the
// supervisor at startup so the tracker can discover its own swarm peers;
// never exposed over the network.
func (s *Store) RegisterLocalPeer(destination, b32, displayName string, now int64) error {
	return s.UpsertPeer(Peer{
		Destination: destination,
		B32Address:  b32,
		DisplayName: displayName,
		LastSeen:    now,
	})
}

// IsNonceUsed reports whether nonce has already been recorded.
func (s *Store) IsNonceUsed(nonce string) (bool, error) {
	row := s.db.QueryRow(`SELECT 1 FROM used_nonces WHERE nonce = ?`, nonce)
	var x int
	err := row.Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// MarkNonceUsed records nonce as consumed at createdAt (epoch ms).
// Re-marking an already-used nonce is a no-op.
func (s *Store) MarkNonceUsed(nonce string, createdAt int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO used_nonces (nonce, createdAt) VALUES (?, ?)`, nonce, createdAt)
	return err
}

// SweepNoncesOlderThan deletes used-nonce rows older than cutoff (epoch
// ms); after this window, reuse of the nonce is assumed to be outside any
// message's validity window and is allowed again.
func (s *Store) SweepNoncesOlderThan(cutoff int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM used_nonces WHERE createdAt < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpsertDHTNode records or refreshes a bootstrap node.
func (s *Store) UpsertDHTNode(n DHTNode) error {
	_, err := s.db.Exec(`
		INSERT INTO dht_nodes (nodeId, destination, lastSeen) VALUES (?, ?, ?)
		ON CONFLICT(nodeId) DO UPDATE SET destination=excluded.destination, lastSeen=excluded.lastSeen
	`, n.NodeID, n.Destination, n.LastSeen)
	return err
}

// DHTNodes returns up to limit known bootstrap nodes with lastSeen >
// cutoff.
func (s *Store) DHTNodes(cutoff int64, limit int) ([]DHTNode, error) {
	rows, err := s.db.Query(`SELECT nodeId, destination, lastSeen FROM dht_nodes WHERE lastSeen > ? ORDER BY lastSeen DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DHTNode
	for rows.Next() {
		var n DHTNode
		if err := rows.Scan(&n.NodeID, &n.Destination, &n.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SweepDHTNodes deletes bootstrap nodes with lastSeen <= cutoff, mirroring
// peer-timeout lifecycle.
func (s *Store) SweepDHTNodes(cutoff int64) error {
	_, err := s.db.Exec(`DELETE FROM dht_nodes WHERE lastSeen <= ?`, cutoff)
	return err
}

// CountActivePeers returns the number of peers with lastSeen > cutoff,
// used for the "Stats: N active peers" log line.
func (s *Store) CountActivePeers(cutoff int64) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM peers WHERE lastSeen > ?`, cutoff)
	var n int
	err := row.Scan(&n)
	return n, err
}
