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

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotInit       = errors.New("config not init")
	ErrDuplicateInitConfig = errors.New("duplicate init config")
)

const (
	DefaultLocalAddr    = ":12345"
	DefaultMaxLineBytes = 512
	minMaxLineBytes     = 16
)

// Do not use config directly in the broker's data path to prevent race
// Global configuration
var _config *Config

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("proxy.network", "tcp")
	v.SetDefault("proxy.local_addr", DefaultLocalAddr)
	v.SetDefault("proxy.max_clients", 0)
	v.SetDefault("proxy.max_line_bytes", DefaultMaxLineBytes)
	v.SetDefault("proxy.write_timeout_ms", 0)
	v.SetDefault("proxy.handshake_timeout_ms", 0)
	v.SetDefault("broker.reply_to_publishers", false)
	v.SetDefault("storage.enable", false)
	v.SetDefault("storage.path", "data/topics")
	v.SetDefault("pprof_debug.enable", false)
	v.SetDefault("pprof_debug.port", 26063)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("ip_white_list.enable", false)
	v.SetDefault("monitor.enable", false)
	v.SetDefault("monitor.address", ":19090")
	v.SetDefault("monitor.hot_topic.enable", false)
	v.SetDefault("monitor.hot_topic.lru_size", 1024)
	v.SetDefault("monitor.hot_topic.window_seconds", 10)
	v.SetDefault("monitor.hot_topic.second_hot_threshold", 1000)
	v.SetDefault("monitor.slow_multicast.enable", false)
	v.SetDefault("monitor.slow_multicast.threshold", 100)
	v.SetDefault("monitor.slow_multicast.max_list_size", 64)
}

// Load builds a Config from v after applying defaults and validation.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// InitConfig maps the global viper instance into the global Config.
func InitConfig() error {
	if _config != nil {
		return ErrDuplicateInitConfig
	}
	c, err := Load(viper.GetViper())
	if err != nil {
		return err
	}
	_config = c
	return nil
}

func Get() *Config {
	return _config
}

func (c *Config) normalize() error {
	switch c.Proxy.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("unsupported proxy.network %q", c.Proxy.Network)
	}
	if c.Proxy.MaxLineBytes < minMaxLineBytes {
		c.Proxy.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.Proxy.MaxClients < 0 {
		c.Proxy.MaxClients = 0
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format != "json" {
		c.Log.Format = "text"
	}
	if c.Monitor.HotTopic.WindowSeconds <= 0 {
		c.Monitor.HotTopic.WindowSeconds = 10
	}
	if c.Monitor.HotTopic.LruSize <= 0 {
		c.Monitor.HotTopic.LruSize = 1024
	}
	if c.Monitor.SlowMulticast.Threshold <= 0 {
		c.Monitor.SlowMulticast.Threshold = 100
	}
	if c.Monitor.SlowMulticast.MaxListSize <= 0 {
		c.Monitor.SlowMulticast.MaxListSize = 64
	}
	if c.Storage.Enable && c.Storage.Path == "" {
		return errors.New("storage.path is required when storage is enabled")
	}
	return nil
}
