// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertPeerPreservesExistingSigningKey(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertPeer(Peer{Destination: "dest-1", B32Address: "b32-1", LastSeen: 1, SigningKey: "key-a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertPeer(Peer{Destination: "dest-1", B32Address: "b32-1", LastSeen: 2, SigningKey: ""}); err != nil {
		t.Fatal(err)
	}

	p, ok, err := s.GetPeer("dest-1")
	if err != nil || !ok {
		t.Fatalf("GetPeer: ok=%v err=%v", ok, err)
	}
	if p.SigningKey != "key-a" {
		t.Fatalf("SigningKey = %q, want the original key-a preserved", p.SigningKey)
	}
	if p.LastSeen != 2 {
		t.Fatalf("LastSeen = %d, want 2 (dynamic fields still update)", p.LastSeen)
	}
}

func TestSweepRemovesOnlyStalePeers(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertPeer(Peer{Destination: "stale", B32Address: "b32-stale", LastSeen: 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertPeer(Peer{Destination: "fresh", B32Address: "b32-fresh", LastSeen: 1000}); err != nil {
		t.Fatal(err)
	}

	dead, err := s.Sweep(500)
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].Destination != "stale" {
		t.Fatalf("Sweep returned %+v, want exactly the stale peer", dead)
	}
	if _, ok, _ := s.GetPeer("stale"); ok {
		t.Fatal("stale peer should have been deleted")
	}
	if _, ok, _ := s.GetPeer("fresh"); !ok {
		t.Fatal("fresh peer should remain")
	}
}

func TestNonceReplayTracking(t *testing.T) {
	s := openTestStore(t)

	used, err := s.IsNonceUsed("abc")
	if err != nil {
		t.Fatal(err)
	}
	if used {
		t.Fatal("a fresh nonce should not be reported as used")
	}

	if err := s.MarkNonceUsed("abc", 1000); err != nil {
		t.Fatal(err)
	}
	used, err = s.IsNonceUsed("abc")
	if err != nil {
		t.Fatal(err)
	}
	if !used {
		t.Fatal("nonce should be reported as used after MarkNonceUsed")
	}

	// Re-marking is a no-op, not an error.
	if err := s.MarkNonceUsed("abc", 2000); err != nil {
		t.Fatalf("re-marking an already-used nonce should not error: %s", err)
	}

	n, err := s.SweepNoncesOlderThan(1500)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("SweepNoncesOlderThan removed %d rows, want 1", n)
	}
	used, _ = s.IsNonceUsed("abc")
	if used {
		t.Fatal("nonce should be free for reuse after its retention window expires")
	}
}

func TestGetActivePeersExcludesRequesterAndRespectsLimit(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		if err := s.UpsertPeer(Peer{Destination: "dest-" + name, B32Address: "b32-" + name, LastSeen: 1000}); err != nil {
			t.Fatal(err)
		}
	}

	peers, err := s.GetActivePeers("dest-a", 500, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 2 {
		t.Fatalf("len(peers) = %d, want 2", len(peers))
	}
	for _, p := range peers {
		if p.Destination == "dest-a" {
			t.Fatal("excluded destination must not appear in the result")
		}
	}
}

func TestCountActivePeers(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertPeer(Peer{Destination: "a", B32Address: "b32-a", LastSeen: 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertPeer(Peer{Destination: "b", B32Address: "b32-b", LastSeen: 1000}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountActivePeers(500)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("CountActivePeers(500) = %d, want 1", n)
	}
}
