// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package sam3

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"strings"
)

// i2pEncoding is the base64 alphabet I2P uses for destinations: standard
// base64 with "-" and "~" in place of "+" and "/".
var i2pEncoding = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-~").WithPadding(base64.StdPadding)

// I2PDestHash is the 32-byte SHA-256 hash of a destination's raw bytes,
// used as a compact peer key (see tracker/models.PeerKey) and as the input
// to a b32 address.
type I2PDestHash [32]byte

// DestHashFromString parses the base32 "xxxx.b32.i2p" form (with or without
// the trailing ".b32.i2p") or a raw base32 string into an I2PDestHash.
func DestHashFromString(s string) (h I2PDestHash, err error) {
	s = strings.TrimSuffix(s, ".b32.i2p")
	s = strings.ToUpper(s)
	// base32.StdEncoding requires padding; I2P b32 addresses omit it.
	if m := len(s) % 8; m != 0 {
		s += strings.Repeat("=", 8-m)
	}
	raw, err := base32.StdEncoding.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != 32 {
		return h, errors.New("sam3: destination hash must decode to 32 bytes")
	}
	copy(h[:], raw)
	return h, nil
}

// String renders the hash as a lowercase, unpadded base32 address.
func (h I2PDestHash) String() string {
	s := base32.StdEncoding.EncodeToString(h[:])
	return strings.ToLower(strings.TrimRight(s, "="))
}

// I2PAddr is a full I2P destination: an opaque base64-encoded public key
// blob roughly 400 characters long. It implements net.Addr.
type I2PAddr string

// Network implements net.Addr.
func (a I2PAddr) Network() string { return "i2p" }

// String implements net.Addr and fmt.Stringer.
func (a I2PAddr) String() string { return string(a) }

// DestHash returns the SHA-256 hash of the destination's raw bytes, the
// same value used to derive a Base32 alias.
func (a I2PAddr) DestHash() (h I2PDestHash) {
	raw, err := i2pEncoding.DecodeString(string(a))
	if err != nil {
		// Fall back to hashing the textual form; this happens for
		// malformed destinations, which the signed-message codec does
		// not reject.
		raw = []byte(a)
	}
	return sha256.Sum256(raw)
}

// Base32 returns the short "xxxx.b32.i2p" alias for this destination.
func (a I2PAddr) Base32() string {
	return a.DestHash().String() + ".b32.i2p"
}

// Valid reports whether a decodes as I2P's base64 destination encoding
// and is long enough to plausibly hold a certificate-bearing destination.
// It does not verify the destination is reachable.
func (a I2PAddr) Valid() bool {
	if len(a) < 256 {
		return false
	}
	_, err := i2pEncoding.DecodeString(string(a))
	return err == nil
}

// I2PKeys is a full I2P keypair: the public destination and the SAM
// "private" blob used to recreate the same identity in SESSION CREATE.
type I2PKeys struct {
	addr I2PAddr
	priv string
}

// NewI2PKeys wraps a (destination, private-blob) pair obtained from SAM.
func NewI2PKeys(addr I2PAddr, priv string) I2PKeys {
	return I2PKeys{addr: addr, priv: priv}
}

// Addr returns the public destination.
func (k I2PKeys) Addr() I2PAddr { return k.addr }

// String returns the private key blob, the value SAM expects after
// "DESTINATION=" when recreating this identity's session.
func (k I2PKeys) String() string { return k.priv }
