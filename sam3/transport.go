// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package sam3

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pushrax/bufferpool"
)

// ErrTransportDown is returned by Send when no datagram session is open.
var ErrTransportDown = errors.New("sam3: transport down")

const maxBackoff = 30 * time.Second

var datagramPool = bufferpool.New(1 << 16)

// Transport is the SAM Transport Adapter: it owns the raw datagram
// session used by the discovery engine, and reconnects with a linearly
// growing, capped backoff when the bridge drops it.
type Transport struct {
	sync.Mutex

	samAddr    string
	udpAddr    string
	session    string
	listenPort int
	opts       []string

	keys    I2PKeys
	dg      *DatagramSession
	running bool
	attempt int

	onData func(from I2PAddr, payload []byte)
}

// NewTransport builds a Transport bound to keys, without opening a
// session yet. Call Open to acquire the datagram session.
func NewTransport(samAddr, udpAddr, session string, listenPort int, keys I2PKeys, opts []string) *Transport {
	return &Transport{
		samAddr:    samAddr,
		udpAddr:    udpAddr,
		session:    session,
		listenPort: listenPort + rand.Intn(100),
		opts:       opts,
		keys:       keys,
	}
}

// OnData registers the callback invoked for every inbound datagram.
// Must be called before Open.
func (t *Transport) OnData(cb func(from I2PAddr, payload []byte)) {
	t.Lock()
	defer t.Unlock()
	t.onData = cb
}

// Open dials the SAM bridge, opens the raw datagram session, and starts
// the receive loop.
func (t *Transport) Open() error {
	t.Lock()
	defer t.Unlock()

	sam, err := NewSAM(t.samAddr)
	if err != nil {
		return err
	}
	dg, err := sam.NewDatagramSession(t.session, t.keys, t.udpAddr, t.listenPort, t.opts)
	if err != nil {
		return err
	}
	t.dg = dg
	t.running = true
	t.attempt = 0
	go t.recvLoop(dg)
	return nil
}

// Close tears down the active session. The receive loop exits on its own
// once the underlying socket errors.
func (t *Transport) Close() error {
	t.Lock()
	defer t.Unlock()
	t.running = false
	if t.dg == nil {
		return nil
	}
	err := t.dg.Close()
	t.dg = nil
	return err
}

// Send fire-and-forget sends payload to dest.
func (t *Transport) Send(dest I2PAddr, payload []byte) error {
	t.Lock()
	dg := t.dg
	t.Unlock()
	if dg == nil {
		return ErrTransportDown
	}
	return dg.Send(dest, payload)
}

func (t *Transport) recvLoop(dg *DatagramSession) {
	buf := datagramPool.Take()
	defer datagramPool.Give(buf)
	for {
		from, n, err := dg.Receive(buf)
		if err != nil {
			t.Lock()
			stillRunning := t.running && t.dg == dg
			t.Unlock()
			if stillRunning {
				glog.Errorf("sam3: datagram session closed: %s", err)
				go t.reconnect()
			}
			return
		}
		t.Lock()
		cb := t.onData
		t.Unlock()
		if cb != nil {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			cb(from, payload)
		}
	}
}

// reconnect retries Open with a backoff of min(5s*attempt, 30s)
// until it succeeds or the transport has been explicitly closed.
func (t *Transport) reconnect() {
	for {
		t.Lock()
		running := t.running
		t.attempt++
		attempt := t.attempt
		t.Unlock()
		if !running {
			return
		}

		backoff := time.Duration(attempt) * 5 * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		time.Sleep(backoff)

		t.Lock()
		running = t.running
		t.Unlock()
		if !running {
			return
		}

		if err := t.Open(); err != nil {
			glog.Errorf("sam3: reconnect attempt %d failed: %s", attempt, err)
			continue
		}
		glog.Infof("sam3: reconnected after %d attempt(s)", attempt)
		return
	}
}
