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

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu     sync.Mutex
	addr   string
	got    [][]byte
	err    error
	closed bool
}

func newFakeSender(addr string) *fakeSender { return &fakeSender{addr: addr} }

func (f *fakeSender) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, append([]byte(nil), p...))
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) RemoteAddr() string { return f.addr }

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.got))
	for i, b := range f.got {
		out[i] = string(b)
	}
	return out
}

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegisterIDsAreUnique(t *testing.T) {
	r := newRegistry(t)
	a := r.Register(newFakeSender("a"))
	b := r.Register(newFakeSender("b"))
	assert.NotEqual(t, a, b)

	info, ok := r.Connection(a)
	require.True(t, ok)
	assert.Equal(t, "a", info.Addr)
	assert.Empty(t, info.Topics)

	r.RemoveConnectionFromAll(a)
	c := r.Register(newFakeSender("c"))
	assert.NotEqual(t, a, c)
	_, ok = r.Connection(a)
	assert.False(t, ok)
}

func TestSubscribeCreatesTopic(t *testing.T) {
	var created []string
	r := newRegistry(t, WithCreateHook(func(name string) { created = append(created, name) }))
	id := r.Register(newFakeSender("s"))

	st, err := r.AddSubscriber("news", id)
	require.NoError(t, err)
	assert.Equal(t, StatusAdded, st)

	st, err = r.AddSubscriber("news", id)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadySubscribed, st)

	info, ok := r.Lookup("news")
	require.True(t, ok)
	assert.Equal(t, 1, info.Subscribers)
	assert.Equal(t, []string{"news"}, created)
	assert.Equal(t, []string{"news"}, r.Subscriptions(id))
}

func TestAddSubscriberErrors(t *testing.T) {
	r := newRegistry(t)
	_, err := r.AddSubscriber("", 1)
	assert.ErrorIs(t, err, ErrEmptyTopicName)

	_, err = r.AddSubscriber("news", 42)
	assert.ErrorIs(t, err, ErrUnknownConnection)
	_, ok := r.Lookup("news")
	assert.False(t, ok, "unknown connection must not create topics")

	_, err = r.GetOrCreate("")
	assert.ErrorIs(t, err, ErrEmptyTopicName)
}

func TestRemoveSubscriber(t *testing.T) {
	r := newRegistry(t)
	id := r.Register(newFakeSender("s"))

	st, err := r.RemoveSubscriber("news", id)
	require.NoError(t, err)
	assert.Equal(t, StatusTopicNotFound, st)

	_, err = r.GetOrCreate("news")
	require.NoError(t, err)

	st, err = r.RemoveSubscriber("news", id)
	require.NoError(t, err)
	assert.Equal(t, StatusNotSubscribed, st)

	_, err = r.AddSubscriber("news", id)
	require.NoError(t, err)
	st, err = r.RemoveSubscriber("news", id)
	require.NoError(t, err)
	assert.Equal(t, StatusRemoved, st)

	// topic survives its last subscriber
	info, ok := r.Lookup("news")
	require.True(t, ok)
	assert.Zero(t, info.Subscribers)
	assert.Empty(t, r.Subscriptions(id))
}

func TestGetOrCreateConcurrent(t *testing.T) {
	var (
		mu      sync.Mutex
		created []string
	)
	r := newRegistry(t, WithCreateHook(func(name string) {
		mu.Lock()
		created = append(created, name)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.GetOrCreate(fmt.Sprintf("t%d", i%4))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, r.TopicCount())
	assert.ElementsMatch(t, []string{"t0", "t1", "t2", "t3"}, created)
}

func TestMulticastExactSubscribers(t *testing.T) {
	r := newRegistry(t)
	s1, s2, s3 := newFakeSender("s1"), newFakeSender("s2"), newFakeSender("s3")
	id1, id2 := r.Register(s1), r.Register(s2)
	r.Register(s3)

	_, err := r.GetOrCreate("news")
	require.NoError(t, err)
	_, err = r.GetOrCreate("sport")
	require.NoError(t, err)
	_, err = r.AddSubscriber("news", id1)
	require.NoError(t, err)
	_, err = r.AddSubscriber("sport", id2)
	require.NoError(t, err)

	d, err := r.Multicast("news", []byte("[news] \"hello\"\n"))
	require.NoError(t, err)
	assert.False(t, d.Created)
	assert.Equal(t, 1, d.Attempted)
	assert.Equal(t, 1, d.Delivered)
	assert.Empty(t, d.Failures)

	assert.Equal(t, []string{"[news] \"hello\"\n"}, s1.messages())
	assert.Empty(t, s2.messages())
	assert.Empty(t, s3.messages())
}

func TestMulticastCreatesTopic(t *testing.T) {
	r := newRegistry(t)
	d, err := r.Multicast("fresh", []byte("[fresh] \"x\"\n"))
	require.NoError(t, err)
	assert.True(t, d.Created)
	assert.Zero(t, d.Attempted)
	assert.Equal(t, []string{"fresh"}, r.ListTopics())
}

func TestMulticastCapturesFailures(t *testing.T) {
	r := newRegistry(t)
	bad := newFakeSender("bad")
	bad.err = errors.New("broken pipe")
	good := newFakeSender("good")
	badID, goodID := r.Register(bad), r.Register(good)

	_, err := r.GetOrCreate("news")
	require.NoError(t, err)
	_, err = r.AddSubscriber("news", badID)
	require.NoError(t, err)
	_, err = r.AddSubscriber("news", goodID)
	require.NoError(t, err)

	d, err := r.Multicast("news", []byte("m\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Attempted)
	assert.Equal(t, 1, d.Delivered)
	require.Len(t, d.Failures, 1)
	assert.Equal(t, badID, d.Failures[0].ID)
	assert.Equal(t, "bad", d.Failures[0].Addr)
	assert.EqualError(t, d.Failures[0].Err, "broken pipe")
	assert.Equal(t, []string{"m\n"}, good.messages())
}

func TestRemoveConnectionFromAll(t *testing.T) {
	r := newRegistry(t)
	s := newFakeSender("s")
	id := r.Register(s)
	for _, name := range []string{"a", "b", "c"} {
		_, err := r.GetOrCreate(name)
		require.NoError(t, err)
	}
	for _, name := range []string{"c", "a"} {
		_, err := r.AddSubscriber(name, id)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "c"}, r.Subscriptions(id))

	assert.Equal(t, 2, r.RemoveConnectionFromAll(id))
	assert.Zero(t, r.RemoveConnectionFromAll(id))
	assert.Zero(t, r.RemoveConnectionFromAll(9999))

	for _, name := range []string{"a", "b", "c"} {
		info, ok := r.Lookup(name)
		require.True(t, ok)
		assert.Zero(t, info.Subscribers, name)
	}

	d, err := r.Multicast("a", []byte("x\n"))
	require.NoError(t, err)
	assert.Zero(t, d.Attempted)
	assert.Empty(t, s.messages())
}

func TestListTopicsInsertionOrder(t *testing.T) {
	r := newRegistry(t)
	assert.Empty(t, r.ListTopics())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := r.GetOrCreate(name)
		require.NoError(t, err)
	}
	_, err := r.GetOrCreate("alpha")
	require.NoError(t, err)

	names := r.ListTopics()
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)

	// the snapshot is a copy
	names[0] = "changed"
	assert.Equal(t, "zeta", r.ListTopics()[0])
}

func TestConcurrentMembershipAndMulticast(t *testing.T) {
	r := newRegistry(t)
	_, err := r.GetOrCreate("news")
	require.NoError(t, err)

	senders := make([]*fakeSender, 16)
	ids := make([]ConnID, len(senders))
	for i := range senders {
		senders[i] = newFakeSender(fmt.Sprintf("s%d", i))
		ids[i] = r.Register(senders[i])
	}

	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(id ConnID) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = r.AddSubscriber("news", id)
				_, _ = r.Multicast("news", []byte("x\n"))
				_, _ = r.RemoveSubscriber("news", id)
				_ = r.ListTopics()
			}
		}(ids[i])
	}
	wg.Wait()

	info, ok := r.Lookup("news")
	require.True(t, ok)
	assert.Zero(t, info.Subscribers)
	assert.Equal(t, 1, r.TopicCount())
}

func TestStoreRestoresTopics(t *testing.T) {
	dir := t.TempDir()
	s, err := store.OpenLevelDB(dir)
	require.NoError(t, err)

	r, err := New(WithStore(s))
	require.NoError(t, err)
	_, err = r.GetOrCreate("b")
	require.NoError(t, err)
	_, err = r.Multicast("a", []byte("x\n"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	s, err = store.OpenLevelDB(dir)
	require.NoError(t, err)
	r = newRegistry(t, WithStore(s))
	assert.Equal(t, []string{"b", "a"}, r.ListTopics())

	_, err = r.GetOrCreate("c")
	require.NoError(t, err)
	names, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func TestClosedRegistry(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.GetOrCreate("x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Multicast("x", []byte("y\n"))
	assert.ErrorIs(t, err, ErrClosed)
}

// closingStore fails any Save that arrives after Close.
type closingStore struct {
	mu         sync.Mutex
	closed     bool
	lateSaves  int
	savedNames []string
}

func (s *closingStore) Load() ([]string, error) { return nil, nil }

func (s *closingStore) Save(name string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.lateSaves++
		return errors.New("store closed")
	}
	s.savedNames = append(s.savedNames, name)
	return nil
}

func (s *closingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestCloseRacingCreates(t *testing.T) {
	s := &closingStore{}
	r, err := New(WithStore(s))
	require.NoError(t, err)
	id := r.Register(newFakeSender("sub"))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, _ = r.GetOrCreate(fmt.Sprintf("g%d", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = r.AddSubscriber(fmt.Sprintf("s%d", i), id)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Multicast(fmt.Sprintf("m%d", i), []byte("x\n"))
		}(i)
	}
	require.NoError(t, r.Close())
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Zero(t, s.lateSaves)
	assert.Len(t, s.savedNames, r.TopicCount())
}
