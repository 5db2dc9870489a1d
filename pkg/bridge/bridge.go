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

// Package bridge exposes dongle state to Home Assistant over MQTT discovery
// and feeds inbound send commands to the dispatcher.
package bridge

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/dongleradar/pkg/logger"
	"github.com/carverauto/dongleradar/pkg/models"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	dispatchTimeout = 30 * time.Second
)

// Sender delivers a (target, message) pair through a dongle. Implemented by
// the dispatch package.
type Sender interface {
	Send(ctx context.Context, imei, target, message string) error
}

// sendCommand is the payload accepted on a device's send topic.
type sendCommand struct {
	Target  string `json:"target"`
	Message string `json:"message,omitempty"`
}

// sendResult is published after each send attempt so automations can react
// to failures instead of them vanishing into a log.
type sendResult struct {
	Success bool   `json:"success"`
	Target  string `json:"target"`
	Error   string `json:"error,omitempty"`
}

// Bridge maps registry diffs onto Home Assistant entity lifecycle: discovery
// config on add, state on change, config teardown on remove.
type Bridge struct {
	config Config
	sender Sender
	logger logger.Logger

	conn   mqttConn
	dial   func(config *Config, willTopic string, log logger.Logger) (mqttConn, error)
	ready  chan struct{}
	failed chan struct{}
}

// New creates a bridge. It connects on Start.
func New(config *Config, sender Sender, log logger.Logger) *Bridge {
	return &Bridge{
		config: *config,
		sender: sender,
		logger: log,
		dial:   dialMQTT,
		ready:  make(chan struct{}),
		failed: make(chan struct{}),
	}
}

// Start implements the lifecycle.Service interface. It connects to the
// broker, announces the bridge online, and subscribes for send commands,
// then parks until the context ends.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.connect(); err != nil {
		// Release anyone parked in ApplyDiff; this bridge will never come up.
		close(b.failed)
		return err
	}

	close(b.ready)

	<-ctx.Done()

	return ctx.Err()
}

func (b *Bridge) connect() error {
	conn, err := b.dial(&b.config, b.bridgeAvailabilityTopic(), b.logger)
	if err != nil {
		return err
	}

	b.conn = conn

	if err := b.publishString(b.bridgeAvailabilityTopic(), payloadOnline, true); err != nil {
		return err
	}

	return conn.Subscribe(b.commandWildcard(), b.config.QoS, b.handleCommand)
}

// Stop implements the lifecycle.Service interface.
func (b *Bridge) Stop(_ context.Context) error {
	if b.conn == nil {
		return nil
	}

	// Flip availability before the socket goes away so HA marks entities
	// unavailable instead of showing stale state forever.
	if err := b.publishString(b.bridgeAvailabilityTopic(), payloadOffline, true); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to publish offline availability")
	}

	// The field stays set: a command handler still in flight publishes into
	// the disconnected client and gets an error, not a nil dereference.
	b.conn.Disconnect()

	return nil
}

// ApplyDiff implements the poller's Sink interface. The poller starts
// alongside the bridge, so the first diff may arrive before the broker
// connection is up; it is held until then.
func (b *Bridge) ApplyDiff(ctx context.Context, diff *models.RegistryDiff) {
	select {
	case <-b.ready:
	case <-b.failed:
		b.logger.Warn().Msg("Dropping registry diff, bridge failed to start")
		return
	case <-ctx.Done():
		b.logger.Warn().Msg("Dropping registry diff, bridge not connected")
		return
	}

	for _, device := range diff.Added {
		b.announceDevice(device)
		b.publishState(device)
	}

	for _, device := range diff.Changed {
		b.publishState(device)
	}

	for _, imei := range diff.Removed {
		b.retractDevice(imei)
	}
}

// announceDevice publishes retained discovery configs for the signal sensor
// and the send service of one dongle.
func (b *Bridge) announceDevice(device *models.DongleDevice) {
	b.publishJSON(b.sensorConfigTopic(device.IMEI), b.sensorDiscoveryPayload(device), true)
	b.publishJSON(b.notifyConfigTopic(device.IMEI), b.notifyDiscoveryPayload(device), true)

	b.logger.Info().
		Str("imei", device.IMEI).
		Str("device", device.Name).
		Msg("Announced dongle to Home Assistant")
}

// retractDevice clears the retained discovery configs, which deletes the
// entities on the HA side, and drops the retained state topics.
func (b *Bridge) retractDevice(imei string) {
	for _, topic := range []string{
		b.sensorConfigTopic(imei),
		b.notifyConfigTopic(imei),
		b.stateTopic(imei),
		b.attributesTopic(imei),
		b.availabilityTopic(imei),
	} {
		if err := b.conn.Publish(topic, b.config.QoS, true, nil); err != nil {
			b.logger.Error().Err(err).Str("topic", topic).Msg("Failed to clear retained topic")
		}
	}

	b.logger.Info().Str("imei", imei).Msg("Retracted dongle from Home Assistant")
}

// publishState pushes the sensor state, attributes, and availability of one
// device.
func (b *Bridge) publishState(device *models.DongleDevice) {
	availability := payloadOffline
	if device.IsAvailable {
		availability = payloadOnline
	}

	if err := b.publishString(b.availabilityTopic(device.IMEI), availability, true); err != nil {
		b.logger.Error().Err(err).Str("imei", device.IMEI).Msg("Failed to publish availability")
	}

	state := "unknown"
	if device.HasSignal {
		state = strconv.Itoa(device.SignalStrength)
	}

	if err := b.publishString(b.stateTopic(device.IMEI), state, true); err != nil {
		b.logger.Error().Err(err).Str("imei", device.IMEI).Msg("Failed to publish state")
	}

	b.publishJSON(b.attributesTopic(device.IMEI), attributesPayload(device), true)
}

// handleCommand processes one message on a device send topic. Errors are
// published to the device's result topic; the bridge never retries.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	imei := imeiFromCommandTopic(topic, b.config.TopicPrefix)
	if imei == "" {
		b.logger.Warn().Str("topic", topic).Msg("Ignoring command on unexpected topic")
		return
	}

	var cmd sendCommand

	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Error().Err(err).Str("imei", imei).Msg("Malformed send command")
		b.publishResult(imei, sendResult{Success: false, Error: "malformed payload: " + err.Error()})

		return
	}

	if cmd.Target == "" {
		b.publishResult(imei, sendResult{Success: false, Error: "target is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := b.sender.Send(ctx, imei, cmd.Target, cmd.Message); err != nil {
		b.logger.Error().
			Err(err).
			Str("imei", imei).
			Str("target", cmd.Target).
			Msg("Send failed")
		b.publishResult(imei, sendResult{Success: false, Target: cmd.Target, Error: err.Error()})

		return
	}

	b.publishResult(imei, sendResult{Success: true, Target: cmd.Target})
}

func (b *Bridge) publishResult(imei string, result sendResult) {
	b.publishJSON(b.resultTopic(imei), result, false)
}

func (b *Bridge) publishJSON(topic string, payload interface{}, retained bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal payload")
		return
	}

	if err := b.conn.Publish(topic, b.config.QoS, retained, data); err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish")
	}
}

func (b *Bridge) publishString(topic, payload string, retained bool) error {
	return b.conn.Publish(topic, b.config.QoS, retained, []byte(payload))
}

// imeiFromCommandTopic extracts the IMEI from "<prefix>/<imei>/send".
func imeiFromCommandTopic(topic, prefix string) string {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return ""
	}

	imei, ok := strings.CutSuffix(rest, "/send")
	if !ok || imei == "" || strings.Contains(imei, "/") {
		return ""
	}

	return imei
}
