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

package protocol

type Role int

const (
	RoleSubscriber Role = iota
	RolePublisher
)

const (
	HandshakePublisher  = "PUBLISHER"
	HandshakeSubscriber = "SUBSCRIBER"
)

func (r Role) String() string {
	if r == RolePublisher {
		return "publisher"
	}
	return "subscriber"
}

// ReadRole consumes the role handshake at the head of the stream. The
// keyword may end with a newline or be followed directly by the first
// command. When the stream does not start with a keyword, the first line is
// returned unconsumed by any role and the role falls back to RoleSubscriber.
func (lr *LineReader) ReadRole() (role Role, explicit bool, first []byte, err error) {
	head, err := lr.r.Peek(1)
	if err != nil {
		return RoleSubscriber, false, nil, err
	}

	keyword, role := "", RoleSubscriber
	switch head[0] {
	case HandshakePublisher[0]:
		keyword, role = HandshakePublisher, RolePublisher
	case HandshakeSubscriber[0]:
		keyword = HandshakeSubscriber
	}
	if keyword != "" && lr.hasPrefix(keyword) {
		_, _ = lr.r.Discard(len(keyword))
		lr.skipEOL = true
		return role, true, nil, nil
	}

	first, err = lr.ReadLine()
	return RoleSubscriber, false, first, err
}

// hasPrefix peeks one byte at a time so a short first line is never held
// waiting for bytes the peer will not send.
func (lr *LineReader) hasPrefix(keyword string) bool {
	for i := 1; i <= len(keyword); i++ {
		p, err := lr.r.Peek(i)
		if err != nil || p[i-1] != keyword[i-1] {
			return false
		}
	}
	return true
}
