// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package sam3

import (
	"context"
	"errors"
	"net"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/config"
)

// Network implements network.Network over a SAM streaming session, used
// by the BEP3 HTTP front end to accept inbound I2P streams.
type Network struct {
	sam     *SAM
	keys    I2PKeys
	session *StreamSession
	conf    config.I2PConfig
}

// NewI2PNetwork builds a Network bound to an already-loaded identity; call
// Setup to open the underlying SAM session.
func NewI2PNetwork(conf config.I2PConfig, keys I2PKeys) *Network {
	return &Network{conf: conf, keys: keys}
}

// Setup dials the SAM bridge and opens a STREAM session reusing this
// node's identity keys, so the BEP3 front end's destination matches the
// one the discovery engine already announced.
func (n *Network) Setup() (err error) {
	addr := n.conf.SAM.Addr
	glog.V(0).Info("Starting BEP3 streaming session on i2p via ", addr)
	n.sam, err = NewSAM(addr)
	if err != nil {
		glog.Errorf("Failed to talk to I2P via %s: %s", addr, err)
		return
	}

	sess := n.conf.SAM.Session + "-stream"
	opts := n.conf.SAM.Opts.AsList()
	n.session, err = n.sam.NewStreamSession(sess, n.keys, opts)
	if err != nil {
		glog.Errorf("Could not create stream session with I2P: %s", err)
		return
	}
	return
}

// Listen opens a stream listener on this session, fed by SAM STREAM
// ACCEPT connections.
func (n *Network) Listen(network, addr string) (l net.Listener, err error) {
	if network != "i2p" {
		return nil, errors.New("sam3: invalid network, is not i2p")
	}
	return n.session.Listen(4)
}

// GetPublicPrivateAddrs returns the forward/reverse address pair
// unmodified; I2P destinations are already globally meaningful.
func (n *Network) GetPublicPrivateAddrs(reverse, forward string) (string, string) {
	return forward, reverse
}

// ReverseDNS resolves an I2P destination to its b32 alias.
func (n *Network) ReverseDNS(c context.Context, a string) ([]string, error) {
	addr := I2PAddr(a)
	return []string{addr.Base32()}, nil
}

// ForwardDNS resolves a name (b32 alias or address-book hostname) to a
// destination, via this session's control connection.
func (n *Network) ForwardDNS(c context.Context, h string) ([]net.Addr, error) {
	addr, err := n.session.Lookup(h)
	if err != nil {
		return nil, err
	}
	return []net.Addr{addr}, nil
}

// PublicAddr returns the b32 alias clients should use to reach l.
func (n *Network) PublicAddr(c context.Context, l net.Listener) (string, error) {
	addr := I2PAddr(l.Addr().String())
	return addr.Base32(), nil
}
