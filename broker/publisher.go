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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/bareneter"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/protocol"
)

// servePublisher relays every valid publish line verbatim to the topic's
// subscribers. Publishers hold no registry membership.
func (b *Broker) servePublisher(conn bareneter.Conn, lr *protocol.LineReader, log *logrus.Entry) error {
	for {
		line, err := lr.ReadLine()
		if errors.Is(err, protocol.ErrLineTooLong) {
			if err := b.rejectPublisherLine(conn, "", err, lr.MaxLineBytes(), log); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return quiet(err)
		}

		cmd := protocol.Parse(string(line))
		switch cmd.Kind {
		case protocol.KindPublish:
			if err := b.publish(conn, cmd.Topic, line, log); err != nil {
				return err
			}
		case protocol.KindExit:
			log.Debug("publisher exit")
			return nil
		case protocol.KindInvalid:
			if err := b.rejectPublisherLine(conn, cmd.Verb, cmd.Err, lr.MaxLineBytes(), log); err != nil {
				return err
			}
		default:
			b.Monitor.CommandRejected("command_on_publisher")
			if b.conf.Broker.ReplyToPublishers {
				if err := conn.Send(protocol.PublisherCommandNotAllowed()); err != nil {
					return err
				}
			}
		}
	}
}

func (b *Broker) publish(conn bareneter.Conn, topic string, line []byte, log *logrus.Entry) error {
	if line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	if _, err := b.registry.GetOrCreate(topic); err != nil {
		log.WithField("topic", topic).Errorf("publish: %v", err)
		return nil
	}

	start := time.Now()
	d, err := b.registry.Multicast(topic, line)
	end := time.Now()
	if err != nil {
		log.WithField("topic", topic).Errorf("multicast: %v", err)
		return nil
	}
	b.Monitor.Multicast(topic, d.Delivered, len(d.Failures), start, end)

	for _, f := range d.Failures {
		// a failed subscriber is closed so its own path cleans it up
		log.WithFields(logrus.Fields{
			"topic":   topic,
			"conn_id": uint64(f.ID),
			"target":  f.Addr,
		}).Warnf("delivery failed: %v", f.Err)
		if f.Sender != nil {
			_ = f.Sender.Close()
		}
	}
	log.WithField("topic", topic).Debugf("published to %d of %d subscribers", d.Delivered, d.Attempted)

	if b.conf.Broker.ReplyToPublishers {
		return conn.Send(protocol.Published(topic, d.Delivered))
	}
	return nil
}

func (b *Broker) rejectPublisherLine(conn bareneter.Conn, verb string, err error, maxLineBytes int, log *logrus.Entry) error {
	log.Warnf("rejected publish line: %v", err)
	b.Monitor.CommandRejected(protocol.Reason(err))
	if b.conf.Broker.ReplyToPublishers {
		return conn.Send(protocol.Rejection(verb, err, maxLineBytes))
	}
	return nil
}
