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
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/bareneter"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/registry"
	"github.com/IceFireDB/IceFireDB-TopicHub/utils"
)

const rolePending = "pending"

// session is the per-connection state kept in the bareneter context.
type session struct {
	mu   sync.Mutex
	role string
	id   registry.ConnID

	releaseOnce sync.Once
	release     func()
}

func (s *session) setRole(role string) {
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
}

func (s *session) getRole() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// cleanup runs the registered release func at most once, whichever
// termination path gets there first.
func (s *session) cleanup() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		fn := s.release
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (s *session) onRelease(fn func()) {
	s.mu.Lock()
	s.release = fn
	s.mu.Unlock()
}

func sessionOf(conn bareneter.Conn) *session {
	s, _ := conn.Context().(*session)
	return s
}

func (b *Broker) accept(conn bareneter.Conn) bool {
	if b.conf.IPWhiteList.Enable {
		host, _, _ := net.SplitHostPort(conn.RemoteAddr())
		if !utils.InArray(host, b.conf.IPWhiteList.List) {
			logrus.WithField("remote_addr", conn.RemoteAddr()).Warn("connection refused: not in ip white list")
			b.Monitor.ClientRejected("ip_white_list")
			return false
		}
	}
	// the new connection is already counted
	if limit := b.conf.Proxy.MaxClients; limit > 0 && b.server.ConnCount() > limit {
		logrus.WithField("remote_addr", conn.RemoteAddr()).Warnf("connection refused: max_clients %d reached", limit)
		b.Monitor.ClientRejected("max_clients")
		return false
	}

	conn.SetContext(&session{role: rolePending})
	b.Monitor.ClientConnected(rolePending)
	return true
}

func (b *Broker) closed(conn bareneter.Conn, err error) {
	s := sessionOf(conn)
	if s == nil {
		return
	}
	s.cleanup()
	role := s.getRole()
	b.Monitor.ClientClosed(role)

	entry := logrus.WithFields(logrus.Fields{"remote_addr": conn.RemoteAddr(), "role": role})
	if err != nil {
		entry.Warnf("connection closed: %v", err)
		return
	}
	entry.Debug("connection closed")
}
