// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package sam3

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
)

// DatagramSession is a SAMv3 RAW session: an unreliable, connectionless
// channel to arbitrary I2P destinations. Inbound framing does not carry a
// sender; callers recover it from the application-layer envelope.
type DatagramSession struct {
	id       string
	keys     I2PKeys
	conn     net.Conn // control connection, kept open for the session's lifetime
	udpAddr  string   // SAM bridge's UDP data port, for sends
	portConn *net.UDPConn
	localUDP int
}

// NewDatagramSession creates a RAW session named id, bound to keys, with
// incoming datagrams delivered to a UDP listener on 127.0.0.1:localUDPPort.
func (sam *SAM) NewDatagramSession(id string, keys I2PKeys, udpAddr string, localUDPPort int, options []string) (*DatagramSession, error) {
	extras := []string{fmt.Sprintf("PORT=%d", localUDPPort), "HOST=127.0.0.1"}
	conn, err := sam.newGenericSession("RAW", id, keys, options, extras)
	if err != nil {
		return nil, err
	}
	laddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("127.0.0.1:%d", localUDPPort))
	if err != nil {
		conn.Close()
		return nil, err
	}
	uc, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &DatagramSession{
		id:       id,
		keys:     keys,
		conn:     conn,
		udpAddr:  udpAddr,
		portConn: uc,
		localUDP: localUDPPort,
	}, nil
}

// Addr returns this session's own I2P destination.
func (d *DatagramSession) Addr() I2PAddr { return d.keys.Addr() }

// Close tears down both the control connection and the local UDP socket.
func (d *DatagramSession) Close() error {
	err1 := d.portConn.Close()
	err2 := d.conn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send fire-and-forget sends payload to dest via the SAM bridge's UDP
// data port. Datagram loss is silent and expected; no error is returned
// for loss that occurs after the bridge accepts the packet.
func (d *DatagramSession) Send(dest I2PAddr, payload []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", d.udpAddr)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("3.0 %s %s\n", d.id, dest)
	buf := bytes.NewBufferString(header)
	buf.Write(payload)

	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(buf.Bytes())
	return err
}

// Receive blocks for a single inbound datagram. If the delivery starts
// with a header line carrying "DESTINATION=<dest>", Receive strips that
// line and returns the sender alongside the payload; otherwise the whole
// datagram is the payload and from is empty.
func (d *DatagramSession) Receive(buf []byte) (from I2PAddr, n int, err error) {
	raw := make([]byte, 1<<16)
	rn, _, err := d.portConn.ReadFromUDP(raw)
	if err != nil {
		return "", 0, err
	}
	reader := bufio.NewReader(bytes.NewReader(raw[:rn]))
	if line, lerr := reader.ReadString('\n'); lerr == nil {
		for _, f := range strings.Fields(line) {
			if strings.HasPrefix(f, "DESTINATION=") {
				from = I2PAddr(f[len("DESTINATION="):])
			}
		}
	}
	if from == "" {
		return "", copy(buf, raw[:rn]), nil
	}
	remaining, _ := reader.Peek(reader.Buffered())
	n = copy(buf, remaining)
	return from, n, nil
}
