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

package registry

import "fmt"

// ConnID identifies a registered connection. IDs are never reused.
type ConnID uint64

func (id ConnID) String() string { return fmt.Sprintf("conn-%d", uint64(id)) }

// Sender is the write side of a connection as seen by the registry.
type Sender interface {
	Send(p []byte) error
	Close() error
	RemoteAddr() string
}

type Status int

const (
	StatusAdded Status = iota
	StatusAlreadySubscribed
	StatusRemoved
	StatusNotSubscribed
	StatusTopicNotFound
)

func (s Status) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusAlreadySubscribed:
		return "already_subscribed"
	case StatusRemoved:
		return "removed"
	case StatusNotSubscribed:
		return "not_subscribed"
	case StatusTopicNotFound:
		return "topic_not_found"
	}
	return "unknown"
}

// TopicInfo is a copy of a topic's state taken under the registry lock.
type TopicInfo struct {
	Name        string
	Subscribers int
}

type ConnInfo struct {
	ID     ConnID
	Addr   string
	Topics []string
}

// Failure is one subscriber send that did not complete.
type Failure struct {
	ID     ConnID
	Addr   string
	Sender Sender
	Err    error
}

// Delivery reports the outcome of one Multicast.
type Delivery struct {
	Topic     string
	Created   bool
	Attempted int
	Delivered int
	Failures  []Failure
}

type topic struct {
	name        string
	subscribers map[ConnID]struct{}
}

type connRecord struct {
	id     ConnID
	addr   string
	sender Sender
	topics map[string]struct{}
}
