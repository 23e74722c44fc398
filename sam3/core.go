// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package sam3 implements the client side of I2P's SAMv3 bridge protocol:
// destination handshake, key generation, name lookup, and STREAM/RAW
// session creation. It is the SAM Transport Adapter of the tracker.
package sam3

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
)

const (
	sessionOK            = "SESSION STATUS RESULT=OK DESTINATION="
	sessionDuplicateID   = "SESSION STATUS RESULT=DUPLICATED_ID\n"
	sessionDuplicateDest = "SESSION STATUS RESULT=DUPLICATED_DEST\n"
	sessionInvalidKey    = "SESSION STATUS RESULT=INVALID_KEY\n"
	sessionI2PError      = "SESSION STATUS RESULT=I2P_ERROR MESSAGE="
)

// SAM is a connection to the control port of an I2P router's SAMv3 bridge.
// Creating a session opens a separate control connection for it (see
// newGenericSession); this one stays usable for key generation and lookups.
type SAM struct {
	address string // ipv4:port of the SAM control port
	conn    net.Conn
}

// NewSAM dials the SAM bridge's control port and performs the version
// handshake.
func NewSAM(address string) (*SAM, error) {
	conn, err := net.Dial("tcp4", address)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte("HELLO VERSION MIN=3.0 MAX=3.3\n")); err != nil {
		conn.Close()
		return nil, err
	}
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, err
	}
	reply := string(buf[:n])
	switch {
	case strings.HasPrefix(reply, "HELLO REPLY RESULT=OK"):
		return &SAM{address, conn}, nil
	case reply == "HELLO REPLY RESULT=NOVERSION\n":
		conn.Close()
		return nil, errors.New("sam3: SAM bridge does not support SAMv3")
	default:
		conn.Close()
		return nil, errors.New("sam3: HELLO failed: " + reply)
	}
}

// NewKeys asks the SAM bridge to mint a brand new I2P destination.
func (sam *SAM) NewKeys() (I2PKeys, error) {
	if _, err := sam.conn.Write([]byte("DEST GENERATE\n")); err != nil {
		return I2PKeys{}, err
	}
	buf := make([]byte, 8192)
	n, err := sam.conn.Read(buf)
	if err != nil {
		return I2PKeys{}, err
	}
	s := bufio.NewScanner(bytes.NewReader(buf[:n]))
	s.Split(bufio.ScanWords)

	var pub, priv string
	for s.Scan() {
		text := s.Text()
		switch {
		case text == "DEST" || text == "REPLY":
			continue
		case strings.HasPrefix(text, "PUB="):
			pub = text[4:]
		case strings.HasPrefix(text, "PRIV="):
			priv = text[5:]
		default:
			return I2PKeys{}, errors.New("sam3: failed to parse DEST GENERATE reply")
		}
	}
	if pub == "" || priv == "" {
		return I2PKeys{}, errors.New("sam3: incomplete DEST GENERATE reply")
	}
	return NewI2PKeys(I2PAddr(pub), priv), nil
}

// Lookup resolves a name (a full destination, a ".b32.i2p" alias, or a
// hostname known to the router's address book) to a destination.
func (sam *SAM) Lookup(name string) (I2PAddr, error) {
	if _, err := sam.conn.Write([]byte("NAMING LOOKUP NAME=" + name + "\n")); err != nil {
		return I2PAddr(""), err
	}
	buf := make([]byte, 4096)
	n, err := sam.conn.Read(buf)
	if err != nil {
		return I2PAddr(""), err
	}
	if n <= 13 || !strings.HasPrefix(string(buf[:n]), "NAMING REPLY ") {
		return I2PAddr(""), errors.New("sam3: failed to parse NAMING REPLY")
	}
	s := bufio.NewScanner(bytes.NewReader(buf[13:n]))
	s.Split(bufio.ScanWords)

	errStr := ""
	for s.Scan() {
		text := s.Text()
		switch {
		case text == "RESULT=OK":
			continue
		case text == "RESULT=INVALID_KEY":
			errStr += "invalid key"
		case text == "RESULT=KEY_NOT_FOUND":
			errStr += "unable to resolve " + name
		case text == "NAME="+name:
			continue
		case strings.HasPrefix(text, "VALUE="):
			return I2PAddr(text[6:]), nil
		case strings.HasPrefix(text, "MESSAGE="):
			errStr += " " + text[8:]
		default:
			return I2PAddr(""), errors.New("sam3: failed to parse lookup reply")
		}
	}
	return I2PAddr(""), errors.New(errStr)
}

// newGenericSession creates a new STYLE session ("STREAM", "DATAGRAM" or
// "RAW") named id, bound to keys, with the given I2CP/streaminglib
// options. It opens a fresh control connection to the bridge, which
// becomes the session's dedicated connection for its lifetime.
func (sam *SAM) newGenericSession(style, id string, keys I2PKeys, options []string, extras []string) (net.Conn, error) {
	sam2, err := NewSAM(sam.address)
	if err != nil {
		return nil, errors.New("sam3: unable to open tunnel control connection: " + err.Error())
	}
	optStr := ""
	for _, opt := range options {
		optStr += "OPTION=" + opt + " "
	}

	conn := sam2.conn
	scmsg := []byte("SESSION CREATE STYLE=" + style + " ID=" + id + " DESTINATION=" + keys.String() + " " + optStr + strings.Join(extras, " ") + "\n")
	if _, err := io.Copy(conn, bytes.NewReader(scmsg)); err != nil {
		conn.Close()
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, err
	}
	text := string(buf[:n])
	switch {
	case strings.HasPrefix(text, sessionOK):
		if keys.String() != strings.TrimSuffix(text[len(sessionOK):], "\n") {
			conn.Close()
			return nil, errors.New("sam3: bridge created a session with different keys than requested")
		}
		return conn, nil
	case text == sessionDuplicateID:
		conn.Close()
		return nil, errors.New("sam3: duplicate tunnel name")
	case text == sessionDuplicateDest:
		conn.Close()
		return nil, errors.New("sam3: duplicate destination")
	case text == sessionInvalidKey:
		conn.Close()
		return nil, errors.New("sam3: invalid key")
	case strings.HasPrefix(text, sessionI2PError):
		conn.Close()
		return nil, errors.New("sam3: I2P error " + text[len(sessionI2PError):])
	default:
		conn.Close()
		return nil, errors.New("sam3: unable to parse SESSION CREATE reply: " + text)
	}
}

// Close closes the control connection. It does not affect sessions or
// listeners already created from it.
func (sam *SAM) Close() error {
	return sam.conn.Close()
}

func readLine(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}
