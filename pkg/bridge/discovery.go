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

	"github.com/carverauto/dongleradar/pkg/models"
)

// Topic layout, per device:
//
//	<prefix>/<imei>/state         sensor state, dBm (retained)
//	<prefix>/<imei>/attributes    JSON attributes (retained)
//	<prefix>/<imei>/availability  online/offline (retained)
//	<prefix>/<imei>/send          inbound send commands (subscribed)
//	<prefix>/<imei>/result        outcome of the last send
//
// Discovery configs go under the Home Assistant discovery prefix so entities
// appear without any YAML on the HA side.

func (b *Bridge) stateTopic(imei string) string {
	return fmt.Sprintf("%s/%s/state", b.config.TopicPrefix, imei)
}

func (b *Bridge) attributesTopic(imei string) string {
	return fmt.Sprintf("%s/%s/attributes", b.config.TopicPrefix, imei)
}

func (b *Bridge) availabilityTopic(imei string) string {
	return fmt.Sprintf("%s/%s/availability", b.config.TopicPrefix, imei)
}

func (b *Bridge) commandTopic(imei string) string {
	return fmt.Sprintf("%s/%s/send", b.config.TopicPrefix, imei)
}

func (b *Bridge) resultTopic(imei string) string {
	return fmt.Sprintf("%s/%s/result", b.config.TopicPrefix, imei)
}

func (b *Bridge) commandWildcard() string {
	return fmt.Sprintf("%s/+/send", b.config.TopicPrefix)
}

func (b *Bridge) bridgeAvailabilityTopic() string {
	return fmt.Sprintf("%s/bridge/availability", b.config.TopicPrefix)
}

func (b *Bridge) sensorConfigTopic(imei string) string {
	return fmt.Sprintf("%s/sensor/dongleradar_%s/signal/config", b.config.DiscoveryPrefix, imei)
}

func (b *Bridge) notifyConfigTopic(imei string) string {
	return fmt.Sprintf("%s/notify/dongleradar_%s/send/config", b.config.DiscoveryPrefix, imei)
}

// discoveryDevice is the HA device registry block shared by both entities of
// one dongle, so they group under a single device.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SwVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type sensorDiscovery struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	StateTopic          string          `json:"state_topic"`
	JSONAttributesTopic string          `json:"json_attributes_topic"`
	AvailabilityTopic   string          `json:"availability_topic"`
	DeviceClass         string          `json:"device_class"`
	UnitOfMeasurement   string          `json:"unit_of_measurement"`
	Icon                string          `json:"icon,omitempty"`
	Device              discoveryDevice `json:"device"`
}

type notifyDiscovery struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	CommandTopic      string          `json:"command_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	Device            discoveryDevice `json:"device"`
}

func (b *Bridge) deviceBlock(device *models.DongleDevice) discoveryDevice {
	return discoveryDevice{
		Identifiers:  []string{device.IMEI},
		Name:         fmt.Sprintf("Dongle %s", device.IMEI),
		Manufacturer: device.Manufacturer,
		Model:        device.Model,
		SwVersion:    device.Firmware,
	}
}

func (b *Bridge) sensorDiscoveryPayload(device *models.DongleDevice) sensorDiscovery {
	return sensorDiscovery{
		Name:                "Signal",
		UniqueID:            fmt.Sprintf("dongleradar_%s_signal", device.IMEI),
		StateTopic:          b.stateTopic(device.IMEI),
		JSONAttributesTopic: b.attributesTopic(device.IMEI),
		AvailabilityTopic:   b.availabilityTopic(device.IMEI),
		DeviceClass:         "signal_strength",
		UnitOfMeasurement:   "dBm",
		Icon:                signalIcon(device),
		Device:              b.deviceBlock(device),
	}
}

func (b *Bridge) notifyDiscoveryPayload(device *models.DongleDevice) notifyDiscovery {
	return notifyDiscovery{
		Name:              "Send SMS/USSD",
		UniqueID:          fmt.Sprintf("dongleradar_%s_send", device.IMEI),
		CommandTopic:      b.commandTopic(device.IMEI),
		AvailabilityTopic: b.availabilityTopic(device.IMEI),
		Device:            b.deviceBlock(device),
	}
}

// deviceAttributes is the JSON attribute payload behind the signal sensor.
type deviceAttributes struct {
	IMEI          string `json:"imei"`
	Device        string `json:"device"`
	SignalQuality string `json:"signal_quality"`
	RawRSSI       string `json:"raw_rssi,omitempty"`
	Provider      string `json:"provider,omitempty"`
	NetworkMode   string `json:"network_mode,omitempty"`
	Submode       string `json:"submode,omitempty"`
	Registration  string `json:"registration,omitempty"`
	LAC           string `json:"lac,omitempty"`
	CellID        string `json:"cell_id,omitempty"`
	IMSI          string `json:"imsi,omitempty"`
	State         string `json:"state,omitempty"`
	LastSeen      string `json:"last_seen"`
}

func attributesPayload(device *models.DongleDevice) deviceAttributes {
	return deviceAttributes{
		IMEI:          device.IMEI,
		Device:        device.Name,
		SignalQuality: string(device.SignalQuality),
		RawRSSI:       device.RawRSSI,
		Provider:      device.Provider,
		NetworkMode:   device.NetworkMode,
		Submode:       device.Submode,
		Registration:  device.RegistrationStatus,
		LAC:           device.LAC,
		CellID:        device.CellID,
		IMSI:          device.IMSI,
		State:         device.State,
		LastSeen:      device.LastSeen.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func signalIcon(device *models.DongleDevice) string {
	if !device.HasSignal {
		return "mdi:signal-off"
	}

	switch {
	case device.SignalStrength >= -70:
		return "mdi:signal"
	case device.SignalStrength >= -85:
		return "mdi:signal-2g"
	case device.SignalStrength >= -100:
		return "mdi:signal-1g"
	default:
		return "mdi:signal-off"
	}
}
