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

// Package broker wires the TCP server, the topic registry and the protocol
// into the publish and subscription paths.
package broker

import (
	"context"
	"net"

	"github.com/pingcap/errors"
	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/bareneter"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/config"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/monitor"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/registry"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/store"
)

type Broker struct {
	conf     *config.Config
	registry *registry.Registry
	Monitor  *monitor.Monitor
	server   *bareneter.Server
}

func New(conf *config.Config) (*Broker, error) {
	if conf == nil {
		return nil, config.ErrConfigNotInit
	}
	b := &Broker{conf: conf}

	opts := []registry.Option{
		registry.WithCreateHook(func(name string) {
			logrus.WithField("topic", name).Info("topic created")
		}),
	}
	if conf.Storage.Enable {
		s, err := store.OpenLevelDB(conf.Storage.Path)
		if err != nil {
			return nil, errors.Annotate(err, "open topic catalog")
		}
		opts = append(opts, registry.WithStore(s))
	}
	reg, err := registry.New(opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	b.registry = reg

	if err := b.initMonitor(); err != nil {
		_ = reg.Close()
		return nil, errors.Annotate(err, "init monitor")
	}

	b.server = bareneter.NewServerNetwork(conf.Proxy.Network,
		conf.Proxy.LocalAddr,
		b.handle,
		b.accept,
		b.closed,
		bareneter.WithWriteTimeout(conf.Proxy.WriteTimeout()))
	return b, nil
}

func (b *Broker) Registry() *registry.Registry { return b.registry }

// Addr is the bound listen address once Run has signalled success.
func (b *Broker) Addr() net.Addr { return b.server.Addr() }

// Run serves until ctx is done. The listen result is sent on errSignal.
func (b *Broker) Run(ctx context.Context, errSignal chan error) {
	go func() {
		<-ctx.Done()
		_ = b.server.Close()
	}()
	if b.conf.Monitor.Enable {
		if _, err := monitor.RunPrometheusExporter(ctx, b.Monitor, b.conf.Monitor.Address); err != nil {
			logrus.Errorf("prometheus exporter: %v", err)
		}
	}
	b.Monitor.BeginMonitorHotTopic(ctx)

	if err := b.server.ListenServeAndSignal(errSignal); err != nil {
		logrus.Errorf("broker: serve %s %s: %v", b.conf.Proxy.Network, b.conf.Proxy.LocalAddr, err)
	}
}

// Close stops the listener, closes every client and then the registry.
func (b *Broker) Close() error {
	_ = b.server.Close()
	return b.registry.Close()
}
