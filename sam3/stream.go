// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package sam3

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
)

// StreamSession is a SAMv3 STREAM session: it can dial out to other I2P
// destinations and/or listen for inbound connections.
type StreamSession struct {
	samAddr   string              // address of the SAM bridge (ipv4:port)
	id        string              // tunnel nickname
	conn      net.Conn            // dedicated control connection for this session
	keys      I2PKeys             // i2p destination keys
	listeners []*StreamListener   // active listeners
	lookups   chan *lookupRequest // name lookup channel
}

// ID returns the local tunnel nickname of this session.
func (ss StreamSession) ID() string { return ss.id }

// IsOpen reports whether the session's control connection is still open.
func (ss *StreamSession) IsOpen() bool { return ss.conn != nil }

// Close tears down every listener and the session's control connection.
func (ss *StreamSession) Close() error {
	for _, l := range ss.listeners {
		l.Close()
	}
	ss.listeners = nil
	if ss.conn == nil {
		return nil
	}
	err := ss.conn.Close()
	ss.conn = nil
	return err
}

// Addr returns the I2P destination (the address) of the stream session.
func (ss StreamSession) Addr() I2PAddr { return ss.keys.Addr() }

// Keys returns the keys associated with the stream session.
func (ss StreamSession) Keys() I2PKeys { return ss.keys }

// NewStreamSession creates a new StreamSession with the I2CP- and
// streaminglib-options as specified. See the I2P documentation for a full
// list of options.
func (sam *SAM) NewStreamSession(id string, keys I2PKeys, options []string) (*StreamSession, error) {
	conn, err := sam.newGenericSession("STREAM", id, keys, options, nil)
	if err != nil {
		return nil, err
	}
	s := &StreamSession{sam.address, id, conn, keys, nil, make(chan *lookupRequest)}
	go s.runLookups()
	return s, nil
}

func (s *StreamSession) runLookups() {
	for s.IsOpen() {
		s.doNameLookup(<-s.lookups)
	}
}

// Lookup resolves name using this session's control connection.
func (s *StreamSession) Lookup(name string) (I2PAddr, error) {
	lookup := &lookupRequest{name: name, resp: make(chan lookupResult)}
	s.lookups <- lookup
	r := <-lookup.resp
	return r.addr, r.err
}

type lookupRequest struct {
	name string
	resp chan lookupResult
}

type lookupResult struct {
	addr I2PAddr
	err  error
}

func (ss *StreamSession) doNameLookup(req *lookupRequest) {
	if _, err := ss.conn.Write([]byte("NAMING LOOKUP NAME=" + req.name + "\n")); err != nil {
		ss.Close()
		req.resp <- lookupResult{I2PAddr(""), err}
		return
	}
	buf := make([]byte, 4096)
	n, err := ss.conn.Read(buf)
	if err != nil {
		ss.Close()
		req.resp <- lookupResult{I2PAddr(""), err}
		return
	}
	if n <= 13 || !strings.HasPrefix(string(buf[:n]), "NAMING REPLY ") {
		req.resp <- lookupResult{I2PAddr(""), errors.New("sam3: failed to parse NAMING REPLY")}
		return
	}
	s := bufio.NewScanner(strings.NewReader(string(buf[13:n])))
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
			errStr += "unable to resolve " + req.name
		case text == "NAME="+req.name:
			continue
		case strings.HasPrefix(text, "VALUE="):
			req.resp <- lookupResult{I2PAddr(text[6:]), nil}
			return
		case strings.HasPrefix(text, "MESSAGE="):
			errStr += " " + text[8:]
		default:
			continue
		}
	}
	req.resp <- lookupResult{I2PAddr(""), errors.New(errStr)}
}

// Listen creates a new stream listener with n parallel accept loops.
func (s *StreamSession) Listen(n int) (*StreamListener, error) {
	l := &StreamListener{
		session:  s,
		id:       s.id,
		laddr:    s.keys.Addr(),
		accepted: make(chan acceptedConn, 128),
		run:      true,
	}
	s.listeners = append(s.listeners, l)
	if n <= 0 {
		n = 1
	}
	for ; n > 0; n-- {
		go l.acceptLoop()
	}
	return l, nil
}

type acceptedConn struct {
	c   net.Conn
	err error
}

// StreamListener implements net.Listener for inbound I2P streams.
type StreamListener struct {
	session  *StreamSession
	id       string
	laddr    I2PAddr
	accepted chan acceptedConn
	run      bool
}

func (l *StreamListener) acceptLoop() {
	for l.run && l.session.IsOpen() {
		n, err := l.AcceptI2P()
		if l.accepted == nil {
			return
		}
		if err == nil {
			l.accepted <- acceptedConn{n, nil}
		}
	}
}

// Addr implements net.Listener.
func (l *StreamListener) Addr() net.Addr { return l.laddr }

// Close implements net.Listener.
func (l *StreamListener) Close() error {
	l.run = false
	ch := l.accepted
	l.accepted = nil
	if ch != nil {
		close(ch)
	}
	l.session = nil
	return nil
}

// Accept implements net.Listener.
func (l *StreamListener) Accept() (net.Conn, error) {
	a, ok := <-l.accepted
	if !ok {
		return nil, errors.New("sam3: i2p acceptor closed")
	}
	return a.c, a.err
}

// AcceptI2P blocks for a single inbound connection and returns the
// underlying SAMConn, giving access to the remote destination.
func (l *StreamListener) AcceptI2P() (*SAMConn, error) {
	if l.session == nil {
		return nil, errors.New("sam3: no session for this listener")
	}
	s, err := NewSAM(l.session.samAddr)
	if err != nil {
		return nil, err
	}
	nc := s.conn
	fmt.Fprintf(nc, "STREAM ACCEPT ID=%s SILENT=false\n", l.id)
	line, err := readLine(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	scanner := bufio.NewScanner(strings.NewReader(line))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		switch scanner.Text() {
		case "STREAM", "STATUS":
			continue
		case "RESULT=OK":
			line, err = readLine(nc)
			if err != nil {
				nc.Close()
				return nil, err
			}
			if tc, ok := nc.(*net.TCPConn); ok {
				tc.SetLinger(0)
			}
			return &SAMConn{laddr: l.laddr, raddr: I2PAddr(strings.TrimSpace(line)), conn: nc}, nil
		case "RESULT=CANT_REACH_PEER":
			nc.Close()
			return nil, errors.New("sam3: cannot reach peer")
		case "RESULT=I2P_ERROR":
			nc.Close()
			return nil, errors.New("sam3: I2P internal error")
		case "RESULT=INVALID_KEY":
			nc.Close()
			return nil, errors.New("sam3: invalid key")
		case "RESULT=INVALID_ID":
			nc.Close()
			return nil, errors.New("sam3: invalid tunnel ID")
		case "RESULT=TIMEOUT":
			nc.Close()
			return nil, errors.New("sam3: timeout")
		default:
			nc.Close()
			return nil, errors.New("sam3: unknown error: " + line)
		}
	}
	return nil, err
}
