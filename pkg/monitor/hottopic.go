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

package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/IceFireDB/IceFireDB-TopicHub/utils"
)

// HotTopic is a topic whose publish rate crossed the threshold in the last window.
type HotTopic struct {
	Topic     string
	Count     uint64
	PerSecond float64
}

type hotTopicData struct {
	topic string
	count *atomic.Uint64
}

type hotTopicMonitor struct {
	conf HotTopicConfS
	lru  *lru.Cache

	mu          sync.RWMutex
	windowStart time.Time
	last        []HotTopic
	lastStart   time.Time
	lastEnd     time.Time
}

func newHotTopicMonitor(conf HotTopicConfS) (*hotTopicMonitor, error) {
	cache, err := lru.New(conf.LruSize)
	if err != nil {
		return nil, err
	}
	return &hotTopicMonitor{conf: conf, lru: cache, windowStart: time.Now()}, nil
}

// PutHotTopic counts one publish on topic. No-op when detection is off.
func (m *Monitor) PutHotTopic(topic string) {
	if m == nil || m.hotTopics == nil {
		return
	}
	h := m.hotTopics
	prev, ok, _ := h.lru.PeekOrAdd(topic, &hotTopicData{topic: topic, count: atomic.NewUint64(1)})
	if ok {
		prev.(*hotTopicData).count.Inc()
	}
}

// rotate closes the current window at now and starts a new one.
func (h *hotTopicMonitor) rotate(now time.Time) []HotTopic {
	h.mu.Lock()
	start := h.windowStart
	h.windowStart = now
	h.mu.Unlock()

	elapsed := now.Sub(start).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	hot := make([]HotTopic, 0)
	for _, key := range h.lru.Keys() {
		v, ok := h.lru.Peek(key)
		if !ok {
			continue
		}
		data := v.(*hotTopicData)
		count := data.count.Load()
		speed := float64(count) / elapsed
		if speed > float64(h.conf.SecondHotThreshold) {
			hot = append(hot, HotTopic{Topic: data.topic, Count: count, PerSecond: speed})
			logrus.Warnf("Found hot topic: %s, speed: %.2f publish/s", data.topic, speed)
		}
	}
	h.lru.Purge()
	sort.Slice(hot, func(i, j int) bool { return hot[i].Count > hot[j].Count })

	h.mu.Lock()
	h.last = hot
	h.lastStart, h.lastEnd = start, now
	h.mu.Unlock()
	return hot
}

// HotTopics returns the result of the last completed window.
func (m *Monitor) HotTopics() []HotTopic {
	if m == nil || m.hotTopics == nil {
		return nil
	}
	h := m.hotTopics
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HotTopic, len(h.last))
	copy(out, h.last)
	return out
}

// BeginMonitorHotTopic rotates the detection window until ctx is done.
func (m *Monitor) BeginMonitorHotTopic(ctx context.Context) {
	if m.hotTopics == nil {
		return
	}
	window := time.Duration(m.HotTopicConf.WindowSeconds) * time.Second
	utils.GoWithRecover(func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.hotTopics.rotate(now)
			}
		}
	}, func(r interface{}) {
		if ctx.Err() == nil {
			m.BeginMonitorHotTopic(ctx)
		}
	})
}

var (
	hotTopicCountDesc = NewDesc("hot_topic_count", "Count of hot topics in the last window", BasicLabels)
	hotTopicRateDesc  = NewDesc("hot_topic_publish_rate", "Publishes per second of a hot topic", append(BasicLabels, "topic"))
)

type HotTopicExporter struct {
	mon *Monitor
}

func NewHotTopicExporter(mon *Monitor) *HotTopicExporter {
	return &HotTopicExporter{mon: mon}
}

func (e *HotTopicExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- hotTopicCountDesc
	ch <- hotTopicRateDesc
}

func (e *HotTopicExporter) Collect(ch chan<- prometheus.Metric) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Error("hot topic prometheus collect panic", r)
		}
	}()
	hot := e.mon.HotTopics()
	ch <- prometheus.MustNewConstMetric(hotTopicCountDesc, prometheus.GaugeValue, float64(len(hot)), e.mon.Host)
	for _, t := range hot {
		ch <- prometheus.MustNewConstMetric(hotTopicRateDesc, prometheus.GaugeValue, t.PerSecond, e.mon.Host, t.Topic)
	}
}
