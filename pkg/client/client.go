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

// Package client is a small Go client for the broker's line protocol.
package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/protocol"
)

var ErrWrongRole = errors.New("operation not allowed for this role")

type Options struct {
	Network      string
	DialTimeout  time.Duration
	MaxRetries   uint64
	MaxLineBytes int
}

type Option func(*Options)

func WithNetwork(network string) Option { return func(o *Options) { o.Network = network } }

func WithDialTimeout(d time.Duration) Option { return func(o *Options) { o.DialTimeout = d } }

// WithMaxRetries bounds the dial attempts after the first one.
func WithMaxRetries(n uint64) Option { return func(o *Options) { o.MaxRetries = n } }

func WithMaxLineBytes(n int) Option { return func(o *Options) { o.MaxLineBytes = n } }

type Client struct {
	conn net.Conn
	lr   *protocol.LineReader
	role protocol.Role
	wmu  sync.Mutex
}

// Dial connects to addr with exponential backoff and sends the handshake
// for role.
func Dial(ctx context.Context, addr string, role protocol.Role, opts ...Option) (*Client, error) {
	o := Options{
		Network:      "tcp",
		DialTimeout:  3 * time.Second,
		MaxRetries:   5,
		MaxLineBytes: protocol.DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var conn net.Conn
	dialer := &net.Dialer{Timeout: o.DialTimeout}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	err := backoff.RetryNotify(func() error {
		c, err := dialer.DialContext(ctx, o.Network, addr)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, o.MaxRetries), ctx), func(err error, next time.Duration) {
		logrus.Debugf("client: dial %s failed, retry in %s: %v", addr, next, err)
	})
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, lr: protocol.NewLineReader(conn, o.MaxLineBytes), role: role}
	handshake := protocol.HandshakeSubscriber
	if role == protocol.RolePublisher {
		handshake = protocol.HandshakePublisher
	}
	if err := c.writeLine(handshake + "\n"); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Role() protocol.Role { return c.role }

func (c *Client) writeLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write([]byte(line))
	return err
}

// Publish validates and sends one message. Invalid input never reaches the wire.
func (c *Client) Publish(topic, text string) error {
	if c.role != protocol.RolePublisher {
		return ErrWrongRole
	}
	line, err := protocol.FormatPublish(topic, text)
	if err != nil {
		return err
	}
	return c.writeLine(line)
}

func (c *Client) Subscribe(topics ...string) error {
	return c.topicCommand(protocol.KindSubscribe, topics)
}

func (c *Client) Unsubscribe(topics ...string) error {
	return c.topicCommand(protocol.KindUnsubscribe, topics)
}

func (c *Client) topicCommand(kind protocol.Kind, topics []string) error {
	if c.role != protocol.RoleSubscriber {
		return ErrWrongRole
	}
	line, err := protocol.FormatTopics(kind, topics...)
	if err != nil {
		return err
	}
	return c.writeLine(line)
}

// ListTopics asks for the topic list. The reply arrives through ReadLine.
func (c *Client) ListTopics() error {
	if c.role != protocol.RoleSubscriber {
		return ErrWrongRole
	}
	return c.writeLine("/topics\n")
}

// ReadLine returns the next line from the broker without its newline.
func (c *Client) ReadLine() (string, error) {
	line, err := c.lr.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// SetReadDeadline bounds the next ReadLine calls.
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Exit asks the broker to close the connection, then closes it locally.
func (c *Client) Exit() error {
	err := c.writeLine("/exit\n")
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
