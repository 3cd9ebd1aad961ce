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

package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli"

	"github.com/IceFireDB/IceFireDB-TopicHub/broker"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/config"
	"github.com/IceFireDB/IceFireDB-TopicHub/pkg/protocol"
	"github.com/IceFireDB/IceFireDB-TopicHub/utils"
)

// BuildDate: Binary file compilation time
// BuildVersion: Binary compiled GIT version
var (
	BuildDate    string
	BuildVersion string
)

func main() {
	app := cli.NewApp()
	app.Name = "IceFireDB-TopicHub"
	app.Usage = "topic based publish/subscribe broker"
	app.Description = "IceFireDB-TopicHub, a topic based pub/sub broker speaking line protocol v" + protocol.Version + "."
	app.Version = BuildVersion
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:     "config,c",
			Usage:    "config file",
			Required: false,
			Value:    "config/config.yaml",
		},
		cli.StringFlag{
			Name:  "log,l",
			Usage: "log level override: debug,info,warning,error",
		},
	}
	app.Before = initConfig
	app.Action = start
	err := app.Run(os.Args)
	if err != nil {
		logrus.Errorf("failed to run application: %v", err)
		os.Exit(1)
	}
}

func start(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := sync.WaitGroup{}
	errSignal := make(chan error)
	b, err := broker.New(config.Get())
	if err != nil {
		return err
	}

	wg.Add(1)
	utils.GoWithRecover(func() {
		defer wg.Done()
		b.Run(ctx, errSignal)
	}, nil)
	err = <-errSignal
	if err != nil {
		_ = b.Close()
		return err
	}
	logrus.Infof("listening on %s %s (build %s %s)", config.Get().Proxy.Network, b.Addr(), BuildVersion, BuildDate)

	// Listening to the offline
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for sig := range sigs {
		switch sig {
		case syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT:
			logrus.Info("Received shutdown signal, initiating graceful shutdown...")
			cancel()

			ok := make(chan struct{})
			go func() {
				wg.Wait()
				close(ok)
			}()
			select {
			case <-ok:
				logrus.Info("All goroutines have gracefully shut down.")
			case <-time.After(time.Second * 5):
				logrus.Warn("Context deadline exceeded, forcing shutdown.")
			}
			if err := b.Close(); err != nil {
				logrus.Errorf("close broker: %v", err)
			}
			return nil

		case syscall.SIGHUP:
			logrus.Info("Received SIGHUP signal, reload is not supported.")
		}
	}

	return nil
}

func initConfig(c *cli.Context) error {
	// Read configuration file configuration
	viper.SetConfigFile(c.String("config"))
	if err := viper.ReadInConfig(); err != nil {
		return err
	}

	// Map configuration file content to structure
	err := config.InitConfig()
	if err != nil {
		return err
	}
	if lv := c.String("log"); lv != "" {
		config.Get().Log.Level = lv
	}
	if err := initLog(config.Get().Log); err != nil {
		return err
	}
	debug()

	return nil
}

func debug() {
	// Open pprof
	if config.Get().PprofDebug.Enable {
		utils.GoWithRecover(func() {
			addr := strconv.Itoa(int(config.Get().PprofDebug.Port))
			_ = http.ListenAndServe(":"+addr, nil)
		}, nil)
	}
}
