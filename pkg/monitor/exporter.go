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
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-TopicHub/utils"
)

// ClientConnected and ClientClosed track live connections per role.
func (m *Monitor) ClientConnected(role string) {
	if m != nil {
		m.ConnectionGauge.WithLabelValues(role).Inc()
	}
}

func (m *Monitor) ClientClosed(role string) {
	if m != nil {
		m.ConnectionGauge.WithLabelValues(role).Dec()
	}
}

// ClientRole moves a connection from one role label to another once its
// handshake is known.
func (m *Monitor) ClientRole(from, to string) {
	if m == nil || from == to {
		return
	}
	m.ConnectionGauge.WithLabelValues(from).Dec()
	m.ConnectionGauge.WithLabelValues(to).Inc()
}

func (m *Monitor) ClientRejected(reason string) {
	if m != nil {
		m.RejectedClients.WithLabelValues(reason).Inc()
	}
}

func (m *Monitor) CommandRejected(reason string) {
	if m != nil {
		m.RejectedCommands.WithLabelValues(reason).Inc()
	}
}

// Multicast records the outcome of one publish fan-out.
func (m *Monitor) Multicast(topic string, delivered, failed int, startTime, endTime time.Time) {
	if m == nil {
		return
	}
	m.Published.Inc()
	m.Deliveries.Add(float64(delivered))
	m.DeliveryFailures.Add(float64(failed))
	m.MulticastDuration.Observe(endTime.Sub(startTime).Seconds())
	m.PutHotTopic(topic)
	m.IsSlowMulticast(topic, delivered+failed, startTime, endTime)
}

// RunPrometheusExporter serves /metrics on address until ctx is done.
// The returned listener address is useful when address has port 0.
func RunPrometheusExporter(ctx context.Context, mon *Monitor, address string) (net.Addr, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mon.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	utils.GoWithRecover(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil)
	utils.GoWithRecover(func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("prometheus exporter: %v", err)
		}
	}, nil)
	return ln.Addr(), nil
}
