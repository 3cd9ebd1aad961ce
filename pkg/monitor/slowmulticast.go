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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

type SlowMulticastData struct {
	Topic     string
	Receivers int
	StartTime time.Time
	EndTime   time.Time
}

type slowMulticastMonitor struct {
	conf  SlowMulticastConfS
	total *atomic.Uint64

	mu   sync.Mutex
	list []SlowMulticastData
}

func newSlowMulticastMonitor(conf SlowMulticastConfS) *slowMulticastMonitor {
	return &slowMulticastMonitor{
		conf:  conf,
		total: atomic.NewUint64(0),
		list:  make([]SlowMulticastData, 0, conf.MaxListSize),
	}
}

// IsSlowMulticast records the fan-out if it took at least the configured
// threshold. The record list is bounded and drained by GetSlowMulticastData.
func (m *Monitor) IsSlowMulticast(topic string, receivers int, startTime, endTime time.Time) bool {
	if m == nil || m.slow == nil {
		return false
	}
	s := m.slow
	cost := endTime.Sub(startTime)
	if cost < time.Duration(s.conf.Threshold)*time.Millisecond {
		return false
	}
	s.total.Inc()

	s.mu.Lock()
	if len(s.list) < s.conf.MaxListSize {
		s.list = append(s.list, SlowMulticastData{Topic: topic, Receivers: receivers, StartTime: startTime, EndTime: endTime})
	}
	s.mu.Unlock()

	logrus.Warnf("Found slow multicast: topic %s, %d receivers, cost: %d ms.", topic, receivers, cost.Milliseconds())
	return true
}

func (m *Monitor) GetSlowMulticastData() []SlowMulticastData {
	if m == nil || m.slow == nil {
		return nil
	}
	s := m.slow
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.list
	s.list = make([]SlowMulticastData, 0, s.conf.MaxListSize)
	return data
}

var slowMulticastTotalDesc = NewDesc("slow_multicast_total", "Count of multicasts slower than the threshold", BasicLabels)

type SlowMulticastExporter struct {
	mon *Monitor
}

func NewSlowMulticastExporter(mon *Monitor) *SlowMulticastExporter {
	return &SlowMulticastExporter{mon: mon}
}

func (e *SlowMulticastExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- slowMulticastTotalDesc
}

func (e *SlowMulticastExporter) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(slowMulticastTotalDesc, prometheus.CounterValue,
		float64(e.mon.slow.total.Load()), e.mon.Host)
}
