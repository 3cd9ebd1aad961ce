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

// Package registry owns the topics and their subscriber sets.
//
// Every read or write of membership state happens under one RWMutex.
// Multicast copies the subscriber set under that lock and sends outside it,
// so a connection removed while a multicast is in flight may still receive
// one trailing message, and a slow subscriber never blocks other registry
// operations. A topic is created by the first publish or subscribe that
// names it and is never deleted; unsubscribing from a topic that does not
// exist reports StatusTopicNotFound.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/store"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/atomic"
)

var (
	ErrEmptyTopicName    = errors.New("topic name cannot be empty")
	ErrClosed            = errors.New("registry closed")
	ErrUnknownConnection = errors.New("unknown connection")
)

type Option func(*Registry)

// WithStore restores topic names from s and records every new topic in it.
func WithStore(s store.TopicStore) Option {
	return func(r *Registry) { r.store = s }
}

// WithCreateHook registers fn to run, outside the lock, after a topic is created.
func WithCreateHook(fn func(name string)) Option {
	return func(r *Registry) { r.onCreate = fn }
}

type Registry struct {
	mu     sync.RWMutex
	topics *orderedmap.OrderedMap[string, *topic]
	conns  map[ConnID]*connRecord

	nextID  *atomic.Uint64
	nextSeq uint64
	closed  *atomic.Bool

	store    store.TopicStore
	onCreate func(name string)
}

func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		topics: orderedmap.New[string, *topic](),
		conns:  make(map[ConnID]*connRecord),
		nextID: atomic.NewUint64(0),
		closed: atomic.NewBool(false),
	}
	for _, o := range opts {
		o(r)
	}
	if r.store != nil {
		names, err := r.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load topic catalog: %w", err)
		}
		for _, name := range names {
			r.topics.Set(name, newTopic(name))
		}
		r.nextSeq = uint64(len(names))
		logrus.Infof("registry: restored %d topics", len(names))
	}
	return r, nil
}

func newTopic(name string) *topic {
	return &topic{name: name, subscribers: make(map[ConnID]struct{})}
}

// Register adds s to the connection arena and returns its identity.
func (r *Registry) Register(s Sender) ConnID {
	id := ConnID(r.nextID.Inc())
	r.mu.Lock()
	r.conns[id] = &connRecord{
		id:     id,
		addr:   s.RemoteAddr(),
		sender: s,
		topics: make(map[string]struct{}),
	}
	r.mu.Unlock()
	return id
}

func (r *Registry) Connection(id ConnID) (ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.conns[id]
	if !ok {
		return ConnInfo{}, false
	}
	return ConnInfo{ID: id, Addr: rec.addr, Topics: r.subscriptionsLocked(rec)}, true
}

func (r *Registry) Lookup(name string) (TopicInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics.Get(name)
	if !ok {
		return TopicInfo{}, false
	}
	return TopicInfo{Name: t.name, Subscribers: len(t.subscribers)}, true
}

// GetOrCreate returns the named topic, creating it if absent. Concurrent
// callers with the same name always observe the same single topic.
func (r *Registry) GetOrCreate(name string) (TopicInfo, error) {
	if name == "" {
		return TopicInfo{}, ErrEmptyTopicName
	}
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return TopicInfo{}, ErrClosed
	}
	t, created := r.getOrCreateLocked(name)
	info := TopicInfo{Name: t.name, Subscribers: len(t.subscribers)}
	r.mu.Unlock()

	if created {
		r.created(name)
	}
	return info, nil
}

func (r *Registry) getOrCreateLocked(name string) (*topic, bool) {
	if t, ok := r.topics.Get(name); ok {
		return t, false
	}
	t := newTopic(name)
	r.topics.Set(name, t)
	r.nextSeq++
	if r.store != nil {
		if err := r.store.Save(name, r.nextSeq); err != nil {
			logrus.Warnf("registry: persist topic %q: %v", name, err)
		}
	}
	return t, true
}

func (r *Registry) created(name string) {
	logrus.Debugf("registry: topic %q created", name)
	if r.onCreate != nil {
		r.onCreate(name)
	}
}

// AddSubscriber subscribes connection id to the named topic, creating the
// topic when it does not exist yet.
func (r *Registry) AddSubscriber(name string, id ConnID) (Status, error) {
	if name == "" {
		return StatusTopicNotFound, ErrEmptyTopicName
	}
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return StatusTopicNotFound, ErrClosed
	}
	rec, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return StatusTopicNotFound, ErrUnknownConnection
	}
	t, created := r.getOrCreateLocked(name)
	if _, dup := t.subscribers[id]; dup {
		r.mu.Unlock()
		return StatusAlreadySubscribed, nil
	}
	t.subscribers[id] = struct{}{}
	rec.topics[name] = struct{}{}
	dump := r.dumpLocked()
	r.mu.Unlock()

	if created {
		r.created(name)
	}
	logDump(dump)
	return StatusAdded, nil
}

// RemoveSubscriber unsubscribes connection id from the named topic.
// The topic itself stays even when its last subscriber leaves.
func (r *Registry) RemoveSubscriber(name string, id ConnID) (Status, error) {
	if name == "" {
		return StatusTopicNotFound, ErrEmptyTopicName
	}
	r.mu.Lock()
	t, ok := r.topics.Get(name)
	if !ok {
		r.mu.Unlock()
		return StatusTopicNotFound, nil
	}
	if _, member := t.subscribers[id]; !member {
		r.mu.Unlock()
		return StatusNotSubscribed, nil
	}
	delete(t.subscribers, id)
	if rec, ok := r.conns[id]; ok {
		delete(rec.topics, name)
	}
	dump := r.dumpLocked()
	r.mu.Unlock()

	logDump(dump)
	return StatusRemoved, nil
}

// RemoveConnectionFromAll drops id from every topic and from the arena.
// It returns the number of topics the connection was removed from and is
// safe to call for unknown or already removed connections.
func (r *Registry) RemoveConnectionFromAll(id ConnID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	if rec, ok := r.conns[id]; ok {
		for name := range rec.topics {
			if t, ok := r.topics.Get(name); ok {
				delete(t.subscribers, id)
				removed++
			}
		}
		delete(r.conns, id)
	}
	return removed
}

// ListTopics returns topic names in creation order.
func (r *Registry) ListTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, r.topics.Len())
	for pair := r.topics.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics.Len()
}

// Subscriptions returns the topics id is subscribed to, in topic creation order.
func (r *Registry) Subscriptions(id ConnID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.conns[id]
	if !ok {
		return nil
	}
	return r.subscriptionsLocked(rec)
}

func (r *Registry) subscriptionsLocked(rec *connRecord) []string {
	out := make([]string, 0, len(rec.topics))
	for pair := r.topics.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := rec.topics[pair.Key]; ok {
			out = append(out, pair.Key)
		}
	}
	return out
}

type target struct {
	id     ConnID
	addr   string
	sender Sender
}

// Multicast sends payload to every current subscriber of name, creating
// the topic when it does not exist yet. A failed send is recorded in the
// returned Delivery and does not stop delivery to the others.
func (r *Registry) Multicast(name string, payload []byte) (Delivery, error) {
	if name == "" {
		return Delivery{}, ErrEmptyTopicName
	}
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return Delivery{}, ErrClosed
	}
	t, created := r.getOrCreateLocked(name)
	targets := make([]target, 0, len(t.subscribers))
	for id := range t.subscribers {
		if rec, ok := r.conns[id]; ok {
			targets = append(targets, target{id: id, addr: rec.addr, sender: rec.sender})
		}
	}
	r.mu.Unlock()

	if created {
		r.created(name)
	}

	d := Delivery{Topic: name, Created: created, Attempted: len(targets)}
	for _, tg := range targets {
		if err := tg.sender.Send(payload); err != nil {
			d.Failures = append(d.Failures, Failure{ID: tg.id, Addr: tg.addr, Sender: tg.sender, Err: err})
			continue
		}
		d.Delivered++
	}
	return d, nil
}

// Close stops accepting new topics and closes the catalog store. Creates
// check the closed flag under r.mu, so none can reach the store afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

func (r *Registry) dumpLocked() string {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return ""
	}
	var b strings.Builder
	for pair := r.topics.Oldest(); pair != nil; pair = pair.Next() {
		ids := make([]uint64, 0, len(pair.Value.subscribers))
		for id := range pair.Value.subscribers {
			ids = append(ids, uint64(id))
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		fmt.Fprintf(&b, "\n  %s: %v", pair.Key, ids)
	}
	return b.String()
}

func logDump(dump string) {
	if dump != "" {
		logrus.Debugf("registry: topics and subscribers:%s", dump)
	}
}
