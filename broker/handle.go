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

package broker

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/bareneter"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/protocol"
)

// handle reads the role handshake and hands the connection to the
// publish or subscription path. The keyword may arrive without a newline,
// directly followed by the first command. A first line that does not start
// with a keyword makes the connection a subscriber and is applied as its
// first command.
func (b *Broker) handle(conn bareneter.Conn) error {
	s := sessionOf(conn)
	if s == nil {
		s = &session{role: rolePending}
		conn.SetContext(s)
	}
	lr := protocol.NewLineReader(conn.NetConn(), b.conf.Proxy.MaxLineBytes)

	if d := b.conf.Proxy.HandshakeTimeout(); d > 0 {
		_ = conn.NetConn().SetReadDeadline(time.Now().Add(d))
	}
	role, explicit, first, err := lr.ReadRole()
	if d := b.conf.Proxy.HandshakeTimeout(); d > 0 {
		_ = conn.NetConn().SetReadDeadline(time.Time{})
	}

	switch {
	case errors.Is(err, protocol.ErrLineTooLong):
		// an overlong first line is a rejected subscriber command
	case err != nil:
		return quiet(err)
	}

	b.Monitor.ClientRole(rolePending, role.String())
	s.setRole(role.String())
	log := logrus.WithFields(logrus.Fields{"remote_addr": conn.RemoteAddr(), "role": role.String()})
	log.Debugf("handshake (explicit=%v)", explicit)

	if role == protocol.RolePublisher {
		return b.servePublisher(conn, lr, log)
	}
	return b.serveSubscriber(conn, s, lr, log, first, err)
}

// quiet drops errors that only mean the peer went away.
func quiet(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
