/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

package bareneter

import (
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
)

type conn struct {
	conn         net.Conn
	addr         string
	ctx          interface{}
	closed       *atomic.Bool
	closeOnce    sync.Once
	closeErr     error
	wmu          sync.Mutex
	writeTimeout time.Duration
}

// Conn represents a client connection
type Conn interface {
	// RemoteAddr returns the remote address of the client connection.
	RemoteAddr() string

	// Close closes the connection. It is safe to call more than once.
	Close() error
	IsClosed() bool
	Context() interface{}

	// SetContext sets a user-defined context
	SetContext(v interface{})
	NetConn() net.Conn

	// Send writes p in full. Concurrent sends on one connection never
	// interleave.
	Send(p []byte) error
}

func newConn(c net.Conn, writeTimeout time.Duration) *conn {
	return &conn{
		conn:         c,
		addr:         c.RemoteAddr().String(),
		closed:       atomic.NewBool(false),
		writeTimeout: writeTimeout,
	}
}

func (c *conn) Context() interface{} { return c.ctx }

func (c *conn) SetContext(v interface{}) { c.ctx = v }

func (c *conn) RemoteAddr() string { return c.addr }

func (c *conn) NetConn() net.Conn {
	return c.conn
}

func (c *conn) Send(p []byte) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *conn) IsClosed() bool {
	return c.closed.Load()
}
