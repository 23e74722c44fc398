// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package identity loads or mints the node's dual keypair: an I2P
// destination (used by the SAM bridge) and an Ed25519 signing keypair
// (used by the signed-message codec). Both are persisted together so a
// restart reuses the same identity.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/majestrate/i2ptracker/sam3"
)

// signingKeys is the JSON shape of the Ed25519 half of tracker-keys.json.
type signingKeys struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// keyFile is the exact on-disk shape of tracker-keys.json.
type keyFile struct {
	PublicKey   string      `json:"publicKey"`
	PrivateKey  string      `json:"privateKey"`
	Destination string      `json:"destination"`
	B32Address  string      `json:"b32Address"`
	SigningKeys signingKeys `json:"signingKeys"`
}

// Identity is a node's full set of key material: an I2P destination and an
// Ed25519 signing keypair, both persisted to the same file.
type Identity struct {
	I2PKeys    sam3.I2PKeys
	SigningPub ed25519.PublicKey
	SigningKey ed25519.PrivateKey
}

// Destination returns the full I2P destination string, the value other
// peers must use in "_from" and to send us datagrams.
func (id Identity) Destination() sam3.I2PAddr { return id.I2PKeys.Addr() }

// B32 returns this identity's short base32 alias.
func (id Identity) B32() string { return id.I2PKeys.Addr().Base32() }

// LoadOrMint loads dataDir/keyFile if it exists; otherwise it asks sam to
// mint a fresh I2P destination, generates an Ed25519 signing keypair, and
// persists both to dataDir/keyFile.
func LoadOrMint(sam *sam3.SAM, dataDir, keyFile string) (Identity, error) {
	path := filepath.Join(dataDir, keyFile)

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		var kf keyFile
		if err := json.NewDecoder(f).Decode(&kf); err != nil {
			return Identity{}, err
		}
		return fromKeyFile(kf)
	} else if !os.IsNotExist(err) {
		return Identity{}, err
	}

	i2pKeys, err := sam.NewKeys()
	if err != nil {
		return Identity{}, err
	}
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{I2PKeys: i2pKeys, SigningPub: signPub, SigningKey: signPriv}
	if err := save(id, path); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func fromKeyFile(kf keyFile) (Identity, error) {
	if kf.Destination == "" || kf.SigningKeys.PrivateKey == "" {
		return Identity{}, errors.New("identity: incomplete key file")
	}
	priv, err := base64.StdEncoding.DecodeString(kf.SigningKeys.PrivateKey)
	if err != nil {
		return Identity{}, err
	}
	pub, err := base64.StdEncoding.DecodeString(kf.SigningKeys.PublicKey)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		I2PKeys:    sam3.NewI2PKeys(sam3.I2PAddr(kf.Destination), kf.PrivateKey),
		SigningPub: ed25519.PublicKey(pub),
		SigningKey: ed25519.PrivateKey(priv),
	}, nil
}

func save(id Identity, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	kf := keyFile{
		PublicKey:   string(id.I2PKeys.Addr()),
		PrivateKey:  id.I2PKeys.String(),
		Destination: string(id.I2PKeys.Addr()),
		B32Address:  id.I2PKeys.Addr().Base32(),
		SigningKeys: signingKeys{
			PublicKey:  base64.StdEncoding.EncodeToString(id.SigningPub),
			PrivateKey: base64.StdEncoding.EncodeToString(id.SigningKey),
		},
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(kf)
}

// WriteDestinationFile writes a single-line destination file for
// operator copy-paste, e.g. "tracker-destination.txt".
func WriteDestinationFile(dataDir, name string, dest sam3.I2PAddr) error {
	path := filepath.Join(dataDir, name)
	return os.WriteFile(path, []byte(string(dest)+"\n"), 0644)
}
