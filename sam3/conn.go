// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package sam3

import (
	"net"
	"time"
)

// SAMConn is a net.Conn wrapping an accepted or dialed I2P stream.
type SAMConn struct {
	laddr I2PAddr
	raddr I2PAddr
	conn  net.Conn
}

func (c *SAMConn) Read(b []byte) (int, error)  { return c.conn.Read(b) }
func (c *SAMConn) Write(b []byte) (int, error) { return c.conn.Write(b) }
func (c *SAMConn) Close() error                { return c.conn.Close() }
func (c *SAMConn) LocalAddr() net.Addr         { return c.laddr }
func (c *SAMConn) RemoteAddr() net.Addr        { return c.raddr }

func (c *SAMConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *SAMConn) SetReadDeadline(t time.Time) error   { return c.conn.SetReadDeadline(t) }
func (c *SAMConn) SetWriteDeadline(t time.Time) error  { return c.conn.SetWriteDeadline(t) }
