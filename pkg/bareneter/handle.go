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
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// NewServerNetwork Create a new server
func NewServerNetwork(
	net, laddr string,
	handler func(conn Conn) error,
	accept func(conn Conn) bool,
	closed func(conn Conn, err error),
	opts ...Option) *Server {
	if handler == nil {
		panic("handler is nil")
	}
	s := &Server{
		net:     net,
		laddr:   laddr,
		handler: handler,
		accept:  accept,
		closed:  closed,
		conns:   make(map[*conn]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe creates a new server and binds to addr configured on "tcp" network net.
func ListenAndServe(net string, addr string,
	handler func(conn Conn) error,
	accept func(conn Conn) bool,
	closed func(conn Conn, err error),
) error {
	return ListenAndServeNetwork(net, addr, handler, accept, closed)
}

// ListenAndServeNetwork creates a new server and binds to addr. The network net must be
// a stream-oriented network: "tcp", "tcp4", "tcp6", "unix" or "unixpacket"
func ListenAndServeNetwork(
	net, laddr string,
	handler func(conn Conn) error,
	accept func(conn Conn) bool,
	closed func(conn Conn, err error),
) error {
	return NewServerNetwork(net, laddr, handler, accept, closed).ListenAndServe()
}

// handle runs the handler once for the lifetime of the connection, then
// closes it and reports it through the closed callback.
func handle(s *Server, c *conn) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("bareneter: handler panic %s: %v\n%s", c.addr, r, debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
		}
		_ = c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		if s.closed != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			s.closed(c, err)
		}
	}()
	err = s.handler(c)
}
