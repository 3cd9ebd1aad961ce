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
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/client"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/config"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/protocol"
)

const testConfig = `
proxy:
  local_addr: "127.0.0.1:0"
  max_line_bytes: 64
log:
  level: info
`

func startBroker(t *testing.T, mutate func(c *config.Config)) *Broker {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(testConfig)))
	conf, err := config.Load(v)
	require.NoError(t, err)
	if mutate != nil {
		mutate(conf)
	}

	b, err := New(conf)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errSignal := make(chan error, 1)
	go b.Run(ctx, errSignal)
	require.NoError(t, <-errSignal)
	t.Cleanup(func() {
		cancel()
		_ = b.Close()
	})
	return b
}

type testConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, b *Broker, handshake string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	c := &testConn{t: t, conn: conn, r: bufio.NewReader(conn)}
	if handshake != "" {
		c.send(handshake)
	}
	return c
}

func (c *testConn) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

// write sends raw bytes with no newline appended.
func (c *testConn) write(raw string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(raw))
	require.NoError(c.t, err)
}

func (c *testConn) expect(want string) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	assert.Equal(c.t, want+"\n", line)
}

func (c *testConn) expectNothing() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	line, err := c.r.ReadString('\n')
	require.Error(c.t, err, "unexpected line %q", line)
	var ne net.Error
	require.ErrorAs(c.t, err, &ne)
	assert.True(c.t, ne.Timeout())
}

func (c *testConn) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err := c.r.ReadString('\n')
	require.Error(c.t, err)
}

func TestPublishSubscribeScenario(t *testing.T) {
	b := startBroker(t, nil)
	p := dial(t, b, "PUBLISHER")
	s1 := dial(t, b, "SUBSCRIBER")
	s2 := dial(t, b, "SUBSCRIBER")

	s1.send(`/subscribe "news"`)
	s1.expect("[INFO] Subscribed to 'news'")

	p.send(`[news] "hello"`)
	s1.expect(`[news] "hello"`)
	s2.expectNothing()

	s1.send(`/unsubscribe "news"`)
	s1.expect("[INFO] Unsubscribed from 'news'")

	p.send(`[news] "again"`)
	s1.expectNothing()

	info, ok := b.Registry().Lookup("news")
	require.True(t, ok)
	assert.Zero(t, info.Subscribers)
	assert.Equal(t, []string{"news"}, b.Registry().ListTopics())
}

func TestMalformedPublishHasNoEffect(t *testing.T) {
	b := startBroker(t, nil)
	p := dial(t, b, "PUBLISHER")
	s := dial(t, b, "SUBSCRIBER")
	s.send(`/subscribe "topic"`)
	s.expect("[INFO] Subscribed to 'topic'")

	for _, line := range []string{`[topic] text`, `[] "text"`, `[topic] ""`} {
		p.send(line)
	}
	// a valid line after the bad ones proves they were consumed
	p.send(`[topic] "ok"`)
	s.expect(`[topic] "ok"`)
	s.expectNothing()

	assert.Equal(t, []string{"topic"}, b.Registry().ListTopics())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Monitor.RejectedCommands.WithLabelValues("missing_quotes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Monitor.RejectedCommands.WithLabelValues("empty_topic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Monitor.RejectedCommands.WithLabelValues("empty_text")))
}

func TestSubscribeMultipleTopicsRepliesInOrder(t *testing.T) {
	b := startBroker(t, nil)
	s := dial(t, b, "SUBSCRIBER")

	s.send(`/subscribe "b" "a" "b"`)
	s.expect("[INFO] Subscribed to 'b'")
	s.expect("[INFO] Subscribed to 'a'")
	s.expect("[INFO] Already subscribed to 'b'")

	s.send(`/unsubscribe "a" "zzz" "a"`)
	s.expect("[INFO] Unsubscribed from 'a'")
	s.expect("[INFO] Topic 'zzz' does not exist.")
	s.expect("[INFO] Not subscribed to 'a'")

	s.send(`/topics`)
	s.expect("Currently available topics:")
	s.expect("  - b")
	s.expect("  - a")
	s.expect(`Use /subscribe "topic1" "topic2" to subscribe.`)
}

func TestSubscriberRejections(t *testing.T) {
	b := startBroker(t, nil)
	s := dial(t, b, "SUBSCRIBER")

	s.send(`/topics`)
	s.expect("No topics available yet.")

	s.send(`/subscribe`)
	s.expect(`[INFO] No topics specified. Use /subscribe "topic1" "topic2".`)

	s.send(`/subscribe ""`)
	s.expect("[INFO] Error: Topic name cannot be empty.")

	s.send(`hello`)
	s.expect(`[INFO] Unknown command. Use /subscribe "topic1" "topic2", /unsubscribe "topic1" "topic2", or /topics.`)

	s.send(`[news] "x"`)
	s.expect("[INFO] Error: publishing is only allowed on publisher connections.")

	s.send(`/subscribe "` + strings.Repeat("x", 100) + `"`)
	s.expect("[INFO] Error: message too long (max 64 bytes).")

	// still usable after the overlong line
	s.send(`/subscribe "news"`)
	s.expect("[INFO] Subscribed to 'news'")
	assert.Equal(t, []string{"news"}, b.Registry().ListTopics())
}

func TestHandshakeFallbackAppliesFirstLine(t *testing.T) {
	b := startBroker(t, nil)
	p := dial(t, b, "PUBLISHER")
	s := dial(t, b, "")

	s.send(`/subscribe "news"`)
	s.expect("[INFO] Subscribed to 'news'")

	p.send(`[news] "hi"`)
	s.expect(`[news] "hi"`)
}

func TestExitCleansUpSubscriber(t *testing.T) {
	b := startBroker(t, nil)
	s := dial(t, b, "SUBSCRIBER")
	s.send(`/subscribe "a" "b"`)
	s.expect("[INFO] Subscribed to 'a'")
	s.expect("[INFO] Subscribed to 'b'")

	s.send(`/exit`)
	s.expectClosed()

	assert.Eventually(t, func() bool {
		a, _ := b.Registry().Lookup("a")
		bb, _ := b.Registry().Lookup("b")
		return a.Subscribers == 0 && bb.Subscribers == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDisconnectCleansUpSubscriber(t *testing.T) {
	b := startBroker(t, nil)
	p := dial(t, b, "PUBLISHER")
	s := dial(t, b, "SUBSCRIBER")
	s.send(`/subscribe "news"`)
	s.expect("[INFO] Subscribed to 'news'")

	require.NoError(t, s.conn.Close())
	assert.Eventually(t, func() bool {
		info, _ := b.Registry().Lookup("news")
		return info.Subscribers == 0
	}, 3*time.Second, 10*time.Millisecond)

	// publishing to a topic whose subscriber left must not disturb the publisher
	p.send(`[news] "after"`)
	other := dial(t, b, "SUBSCRIBER")
	other.send(`/subscribe "news"`)
	other.expect("[INFO] Subscribed to 'news'")
	p.send(`[news] "next"`)
	other.expect(`[news] "next"`)
}

func TestReplyToPublishers(t *testing.T) {
	b := startBroker(t, func(c *config.Config) { c.Broker.ReplyToPublishers = true })
	p := dial(t, b, "PUBLISHER")

	p.send(`[news] text`)
	p.expect(`[INFO] Error: invalid publish format (text must be enclosed in double quotes). Correct format: [topic] "text"`)

	p.send(`[news] "hi"`)
	p.expect("[INFO] Published to 'news' (0 subscribers)")

	p.send(`/subscribe "news"`)
	p.expect("[INFO] Error: publisher connections can only publish.")
}

func TestMaxClients(t *testing.T) {
	b := startBroker(t, func(c *config.Config) { c.Proxy.MaxClients = 1 })
	s := dial(t, b, "SUBSCRIBER")
	s.send(`/topics`)
	s.expect("No topics available yet.")

	extra := dial(t, b, "")
	extra.expectClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Monitor.RejectedClients.WithLabelValues("max_clients")))
}

func TestIPWhiteList(t *testing.T) {
	b := startBroker(t, func(c *config.Config) {
		c.IPWhiteList.Enable = true
		c.IPWhiteList.List = []string{"10.0.0.1"}
	})
	c := dial(t, b, "")
	c.expectClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Monitor.RejectedClients.WithLabelValues("ip_white_list")))
}

func TestStorageRestoresTopics(t *testing.T) {
	dir := t.TempDir()
	extra := func(c *config.Config) {
		c.Storage.Enable = true
		c.Storage.Path = dir
	}

	b := startBroker(t, extra)
	p := dial(t, b, "PUBLISHER")
	s := dial(t, b, "SUBSCRIBER")
	s.send(`/subscribe "first"`)
	s.expect("[INFO] Subscribed to 'first'")
	p.send(`[second] "x"`)
	require.Eventually(t, func() bool { return b.Registry().TopicCount() == 2 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Close())

	b2 := startBroker(t, extra)
	assert.Equal(t, []string{"first", "second"}, b2.Registry().ListTopics())
}

func TestClientRoundTrip(t *testing.T) {
	b := startBroker(t, nil)
	ctx := context.Background()

	sub, err := client.Dial(ctx, b.Addr().String(), protocol.RoleSubscriber)
	require.NoError(t, err)
	defer sub.Close()
	pub, err := client.Dial(ctx, b.Addr().String(), protocol.RolePublisher)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, sub.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, sub.Subscribe("metrics"))
	line, err := sub.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "[INFO] Subscribed to 'metrics'", line)

	require.NoError(t, pub.Publish("metrics", "cpu 0.5"))
	line, err = sub.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `[metrics] "cpu 0.5"`, line)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(b.Monitor.Deliveries) == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Exit())
	assert.Eventually(t, func() bool {
		info, _ := b.Registry().Lookup("metrics")
		return info.Subscribers == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBareHandshakeKeyword(t *testing.T) {
	b := startBroker(t, nil)

	s := dial(t, b, "")
	s.write("SUBSCRIBER")
	time.Sleep(50 * time.Millisecond)
	s.send(`/subscribe "news"`)
	s.expect("[INFO] Subscribed to 'news'")

	p := dial(t, b, "")
	p.write("PUBLISHER")
	time.Sleep(50 * time.Millisecond)
	p.send(`[news] "hi"`)
	s.expect(`[news] "hi"`)
	p.expectNothing()

	// keyword and first command in a single write
	p2 := dial(t, b, "")
	p2.send(`PUBLISHER[news] "again"`)
	s.expect(`[news] "again"`)
}
