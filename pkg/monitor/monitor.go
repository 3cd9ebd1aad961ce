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

// Package monitor holds the broker's prometheus metrics together with the
// hot-topic and slow-multicast detectors.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/IceFireDB/IceFireDB-TopicHub/utils"
)

const Namespace = "topichub"

var BasicLabels = []string{"host"}

type Monitor struct {
	Registry *prometheus.Registry
	Host     string

	ConnectionGauge   *prometheus.GaugeVec
	RejectedClients   *prometheus.CounterVec
	Published         prometheus.Counter
	Deliveries        prometheus.Counter
	DeliveryFailures  prometheus.Counter
	RejectedCommands  *prometheus.CounterVec
	MulticastDuration prometheus.Histogram

	HotTopicConf  HotTopicConfS
	SlowQueryConf SlowMulticastConfS

	hotTopics *hotTopicMonitor
	slow      *slowMulticastMonitor
}

type HotTopicConfS struct {
	Enable             bool
	LruSize            int
	WindowSeconds      int
	SecondHotThreshold int
}

type SlowMulticastConfS struct {
	Enable      bool
	Threshold   int // ms
	MaxListSize int
}

// GetNewMonitor builds a Monitor with its own prometheus registry.
// topicCount backs the topics gauge and may be nil.
func GetNewMonitor(hot *HotTopicConfS, slow *SlowMulticastConfS, topicCount func() int) (*Monitor, error) {
	m := &Monitor{
		Registry: prometheus.NewRegistry(),
		Host:     utils.GetHostname(),
	}
	if hot != nil {
		m.HotTopicConf = *hot
	}
	if slow != nil {
		m.SlowQueryConf = *slow
	}
	constLabels := prometheus.Labels{"host": m.Host}

	m.ConnectionGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Name:        "connected_clients",
		Help:        "Count of connection",
		ConstLabels: constLabels,
	}, []string{"role"})
	m.RejectedClients = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "rejected_clients_total",
		Help:        "Connections refused at accept time",
		ConstLabels: constLabels,
	}, []string{"reason"})
	m.Published = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "published_total",
		Help:        "Publish lines accepted",
		ConstLabels: constLabels,
	})
	m.Deliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "deliveries_total",
		Help:        "Messages written to subscribers",
		ConstLabels: constLabels,
	})
	m.DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "delivery_failures_total",
		Help:        "Subscriber sends that failed",
		ConstLabels: constLabels,
	})
	m.RejectedCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "rejected_commands_total",
		Help:        "Protocol lines rejected",
		ConstLabels: constLabels,
	}, []string{"reason"})
	m.MulticastDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   Namespace,
		Name:        "multicast_duration_seconds",
		Help:        "Time spent fanning out one publish",
		ConstLabels: constLabels,
		Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	collectorsToRegister := []prometheus.Collector{
		m.ConnectionGauge, m.RejectedClients, m.Published, m.Deliveries,
		m.DeliveryFailures, m.RejectedCommands, m.MulticastDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	if topicCount != nil {
		collectorsToRegister = append(collectorsToRegister, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "topics",
			Help:        "Number of topics in the registry",
			ConstLabels: constLabels,
		}, func() float64 { return float64(topicCount()) }))
	}

	if m.HotTopicConf.Enable {
		ht, err := newHotTopicMonitor(m.HotTopicConf)
		if err != nil {
			return nil, err
		}
		m.hotTopics = ht
		collectorsToRegister = append(collectorsToRegister, NewHotTopicExporter(m))
	}
	if m.SlowQueryConf.Enable {
		m.slow = newSlowMulticastMonitor(m.SlowQueryConf)
		collectorsToRegister = append(collectorsToRegister, NewSlowMulticastExporter(m))
	}

	for _, c := range collectorsToRegister {
		if err := m.Registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func NewDesc(metricName string, docString string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "", metricName),
		docString,
		labels,
		nil)
}
