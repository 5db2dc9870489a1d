/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/dongleradar/pkg/ami"
	"github.com/carverauto/dongleradar/pkg/bridge"
	"github.com/carverauto/dongleradar/pkg/config"
	"github.com/carverauto/dongleradar/pkg/dispatch"
	"github.com/carverauto/dongleradar/pkg/dongle"
	"github.com/carverauto/dongleradar/pkg/lifecycle"
	"github.com/carverauto/dongleradar/pkg/logger"
	"github.com/carverauto/dongleradar/pkg/registry"
)

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load config")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	// Parse command line flags
	configPath := flag.String("config", "/etc/dongleradar/dongleradar.json", "Path to dongleradar config file")
	flag.Parse()

	ctx := context.Background()

	// Step 1: Load configuration
	cfgLoader := config.NewConfig(nil)

	var cfg dongle.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	// Step 2: Create logger from loaded config
	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, cfg.ServiceName, logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Step 3: Connect to Asterisk. A PBX that is unreachable at startup is a
	// configuration problem, so fail fast instead of letting the poller spin.
	amiClient := ami.NewClient(&cfg.AMI, mainLogger)
	if err := amiClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to Asterisk: %w", err)
	}

	defer func() {
		if err := amiClient.Close(ctx); err != nil {
			mainLogger.Warn().Err(err).Msg("Error closing AMI connection")
		}
	}()

	// Step 4: Wire the registry, dispatcher, bridge, and poller together.
	reg := registry.New(mainLogger)
	dispatcher := dispatch.New(reg, amiClient, mainLogger)
	entityBridge := bridge.New(&cfg.MQTT, dispatcher, mainLogger)
	poller := dongle.New(&cfg, amiClient, reg, entityBridge, nil, mainLogger)

	// The bridge starts first so the initial poll's diff has somewhere to go.
	return lifecycle.RunServices(ctx, &lifecycle.Options{
		ServiceName: cfg.ServiceName,
		Services:    []lifecycle.Service{entityBridge, poller},
		Logger:      mainLogger,
	})
}
