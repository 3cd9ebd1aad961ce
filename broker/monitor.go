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
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/monitor"
)

func (b *Broker) initMonitor() error {
	mc := b.conf.Monitor
	hotTopicMonitorConf := &monitor.HotTopicConfS{
		Enable:             mc.HotTopic.Enable,
		LruSize:            mc.HotTopic.LruSize,
		WindowSeconds:      mc.HotTopic.WindowSeconds,
		SecondHotThreshold: mc.HotTopic.SecondHotThreshold,
	}
	slowMulticastMonitorConf := &monitor.SlowMulticastConfS{
		Enable:      mc.SlowMulticast.Enable,
		Threshold:   mc.SlowMulticast.Threshold,
		MaxListSize: mc.SlowMulticast.MaxListSize,
	}
	mon, err := monitor.GetNewMonitor(hotTopicMonitorConf, slowMulticastMonitorConf, b.registry.TopicCount)
	if err != nil {
		return err
	}
	b.Monitor = mon
	return nil
}
