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

	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/bareneter"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/protocol"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/registry"
)

// serveSubscriber runs one subscriber connection until /exit, EOF or a
// transport error. Its registry membership is removed exactly once on
// every one of those paths.
func (b *Broker) serveSubscriber(conn bareneter.Conn, s *session, lr *protocol.LineReader,
	log *logrus.Entry, first []byte, firstErr error,
) error {
	id := b.registry.Register(conn)
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	log = log.WithField("conn_id", uint64(id))

	s.onRelease(func() {
		n := b.registry.RemoveConnectionFromAll(id)
		log.Debugf("subscriber released from %d topics", n)
	})
	defer s.cleanup()

	if first != nil || firstErr != nil {
		exit, err := b.applySubscriberLine(conn, id, first, firstErr, lr.MaxLineBytes(), log)
		if exit || err != nil {
			return err
		}
	}
	for {
		line, err := lr.ReadLine()
		if err != nil && !errors.Is(err, protocol.ErrLineTooLong) {
			return quiet(err)
		}
		exit, err := b.applySubscriberLine(conn, id, line, err, lr.MaxLineBytes(), log)
		if exit || err != nil {
			return err
		}
	}
}

// applySubscriberLine applies one line and writes its replies. The error
// return is reserved for transport failures.
func (b *Broker) applySubscriberLine(conn bareneter.Conn, id registry.ConnID, line []byte, readErr error,
	maxLineBytes int, log *logrus.Entry,
) (exit bool, err error) {
	if readErr != nil {
		log.Warnf("rejected line: %v", readErr)
		b.Monitor.CommandRejected(protocol.Reason(readErr))
		return false, conn.Send(protocol.Rejection("", readErr, maxLineBytes))
	}

	cmd := protocol.Parse(string(line))
	switch cmd.Kind {
	case protocol.KindSubscribe:
		for _, topic := range cmd.Topics {
			if err := conn.Send(b.subscribe(topic, id, log)); err != nil {
				return false, err
			}
		}
	case protocol.KindUnsubscribe:
		for _, topic := range cmd.Topics {
			if err := conn.Send(b.unsubscribe(topic, id, log)); err != nil {
				return false, err
			}
		}
	case protocol.KindListTopics:
		return false, conn.Send(protocol.TopicList(b.registry.ListTopics()))
	case protocol.KindExit:
		log.Debug("subscriber exit")
		return true, nil
	case protocol.KindPublish:
		b.Monitor.CommandRejected("publish_on_subscriber")
		return false, conn.Send(protocol.PublishNotAllowed())
	default:
		log.Debugf("rejected command %q: %v", line, cmd.Err)
		b.Monitor.CommandRejected(protocol.Reason(cmd.Err))
		return false, conn.Send(protocol.Rejection(cmd.Verb, cmd.Err, maxLineBytes))
	}
	return false, nil
}

func (b *Broker) subscribe(topic string, id registry.ConnID, log *logrus.Entry) []byte {
	st, err := b.registry.AddSubscriber(topic, id)
	if err != nil {
		log.WithField("topic", topic).Errorf("subscribe: %v", err)
		return protocol.Info("Error: %v", err)
	}
	switch st {
	case registry.StatusAdded:
		log.WithField("topic", topic).Info("subscribed")
		return protocol.Subscribed(topic)
	case registry.StatusAlreadySubscribed:
		return protocol.AlreadySubscribed(topic)
	}
	return protocol.TopicNotFound(topic)
}

func (b *Broker) unsubscribe(topic string, id registry.ConnID, log *logrus.Entry) []byte {
	st, err := b.registry.RemoveSubscriber(topic, id)
	if err != nil {
		log.WithField("topic", topic).Errorf("unsubscribe: %v", err)
		return protocol.Info("Error: %v", err)
	}
	switch st {
	case registry.StatusRemoved:
		log.WithField("topic", topic).Info("unsubscribed")
		return protocol.Unsubscribed(topic)
	case registry.StatusNotSubscribed:
		return protocol.NotSubscribed(topic)
	}
	return protocol.TopicNotFound(topic)
}
