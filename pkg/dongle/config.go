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

package dongle

import (
	"time"

	"github.com/carverauto/dongleradar/pkg/ami"
	"github.com/carverauto/dongleradar/pkg/bridge"
	"github.com/carverauto/dongleradar/pkg/logger"
	"github.com/carverauto/dongleradar/pkg/models"
)

const defaultScanInterval = 60 * time.Second

// Config represents the dongleradar service configuration.
type Config struct {
	AMI          ami.Config      `json:"ami"`
	MQTT         bridge.Config   `json:"mqtt"`
	ScanInterval models.Duration `json:"scan_interval"`
	ServiceName  string          `json:"service_name"`
	Logging      *logger.Config  `json:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if err := c.AMI.Validate(); err != nil {
		return err
	}

	if err := c.MQTT.Validate(); err != nil {
		return err
	}

	if time.Duration(c.ScanInterval) == 0 {
		c.ScanInterval = models.Duration(defaultScanInterval)
	}

	if time.Duration(c.ScanInterval) < 0 {
		return errScanIntervalInvalid
	}

	if c.ServiceName == "" {
		c.ServiceName = "dongleradar"
	}

	return nil
}
