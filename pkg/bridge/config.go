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

package bridge

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	defaultTopicPrefix     = "dongleradar"
	defaultDiscoveryPrefix = "homeassistant"
	defaultQoS             = 1
)

// Config holds the MQTT connection and topic layout settings.
type Config struct {
	Broker          string `json:"broker"` // e.g. tcp://homeassistant.local:1883
	ClientID        string `json:"client_id,omitempty"`
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty"`
	TopicPrefix     string `json:"topic_prefix,omitempty"`
	DiscoveryPrefix string `json:"discovery_prefix,omitempty"`
	QoS             byte   `json:"qos,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errBrokerRequired
	}

	if c.ClientID == "" {
		c.ClientID = fmt.Sprintf("dongleradar-%s", uuid.NewString()[:8])
	}

	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}

	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = defaultDiscoveryPrefix
	}

	if c.QoS == 0 {
		c.QoS = defaultQoS
	}

	return nil
}
