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

package config

import "time"

type Config struct {
	Proxy       ProxyS       `mapstructure:"proxy"`
	Broker      BrokerS      `mapstructure:"broker"`
	Storage     StorageS     `mapstructure:"storage"`
	PprofDebug  PprofDebugS  `mapstructure:"pprof_debug"`
	Log         LogS         `mapstructure:"log"`
	IPWhiteList IPWhiteListS `mapstructure:"ip_white_list"`
	Monitor     MonitorS     `mapstructure:"monitor"`
}

type ProxyS struct {
	Network   string `mapstructure:"network" json:"network"`       // tcp, tcp4, tcp6 or unix
	LocalAddr string `mapstructure:"local_addr" json:"local_addr"` // Address to listen on
	// 0 means unlimited
	MaxClients int `mapstructure:"max_clients" json:"max_clients"`
	// Upper bound of one protocol line, newline included
	MaxLineBytes int `mapstructure:"max_line_bytes" json:"max_line_bytes"`
	// Deadline for one send to a client. Unit: ms, 0 disables it
	WriteTimeoutMs int `mapstructure:"write_timeout_ms" json:"write_timeout_ms"`
	// Deadline for the role handshake line. Unit: ms, 0 disables it
	HandshakeTimeoutMs int `mapstructure:"handshake_timeout_ms" json:"handshake_timeout_ms"`
}

func (p ProxyS) WriteTimeout() time.Duration {
	return time.Duration(p.WriteTimeoutMs) * time.Millisecond
}

func (p ProxyS) HandshakeTimeout() time.Duration {
	return time.Duration(p.HandshakeTimeoutMs) * time.Millisecond
}

type BrokerS struct {
	// Send [INFO] replies to publishers for rejected or accepted lines
	ReplyToPublishers bool `mapstructure:"reply_to_publishers" json:"reply_to_publishers"`
}

// StorageS configures the topic catalog. Messages are never stored.
type StorageS struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

type PprofDebugS struct {
	Enable bool   `mapstructure:"enable"`
	Port   uint16 `mapstructure:"port"`
}

type LogS struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	OutPut string `mapstructure:"output"` // stdout, stderr or a file path
}

type IPWhiteListS struct {
	Enable bool     `mapstructure:"enable" json:"enable"`
	List   []string `mapstructure:"list" json:"list"`
}

type MonitorS struct {
	Enable        bool           `mapstructure:"enable"`
	Address       string         `mapstructure:"address"`
	HotTopic      HotTopicS      `mapstructure:"hot_topic"`
	SlowMulticast SlowMulticastS `mapstructure:"slow_multicast"`
}

type HotTopicS struct {
	Enable bool `mapstructure:"enable"`
	// Number of topics tracked per window
	LruSize int `mapstructure:"lru_size"`
	// Length of one sampling window. Unit: seconds
	WindowSeconds int `mapstructure:"window_seconds"`
	// Publishes per second above which a topic is reported hot
	SecondHotThreshold int `mapstructure:"second_hot_threshold"`
}

type SlowMulticastS struct {
	Enable bool `mapstructure:"enable"`
	// Unit: ms
	Threshold   int `mapstructure:"threshold"`
	MaxListSize int `mapstructure:"max_list_size"`
}
