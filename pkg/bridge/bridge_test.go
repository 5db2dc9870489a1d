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
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/dongleradar/pkg/logger"
	"github.com/carverauto/dongleradar/pkg/models"
)

const testIMEI = "123456788935456"

type publishRecord struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeConn records publishes and subscriptions in place of a broker.
type fakeConn struct {
	mu            sync.Mutex
	published     []publishRecord
	subscriptions map[string]func(topic string, payload []byte)
	disconnects   int
	publishErr    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{subscriptions: make(map[string]func(topic string, payload []byte))}
}

func (f *fakeConn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}

	f.published = append(f.published, publishRecord{topic: topic, qos: qos, retained: retained, payload: payload})

	return nil
}

func (f *fakeConn) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscriptions[topic] = handler

	return nil
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnects++
}

// find returns all publishes on the given topic.
func (f *fakeConn) find(topic string) []publishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []publishRecord

	for _, rec := range f.published {
		if rec.topic == topic {
			out = append(out, rec)
		}
	}

	return out
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, imei, target, message string) error {
	args := m.Called(ctx, imei, target, message)
	return args.Error(0)
}

func newTestBridge(t *testing.T, sender Sender) (*Bridge, *fakeConn) {
	t.Helper()

	config := &Config{
		Broker:          "tcp://127.0.0.1:1883",
		TopicPrefix:     "dongleradar",
		DiscoveryPrefix: "homeassistant",
		QoS:             1,
	}
	require.NoError(t, config.Validate())

	b := New(config, sender, logger.NewTestLogger())
	conn := newFakeConn()
	b.conn = conn
	close(b.ready)

	return b, conn
}

func testDevice() *models.DongleDevice {
	return &models.DongleDevice{
		IMEI:           testIMEI,
		Name:           "dongle0",
		Manufacturer:   "huawei",
		Model:          "E1550",
		Firmware:       "11.609.10.01.00",
		State:          "Free",
		SignalStrength: -75,
		HasSignal:      true,
		RawRSSI:        "19",
		SignalQuality:  models.SignalGood,
		Provider:       "MTS RUS",
		IsAvailable:    true,
		LastSeen:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApplyDiffAdded(t *testing.T) {
	b, conn := newTestBridge(t, &mockSender{})

	b.ApplyDiff(context.Background(), &models.RegistryDiff{
		Added: []*models.DongleDevice{testDevice()},
	})

	configs := conn.find("homeassistant/sensor/dongleradar_" + testIMEI + "/signal/config")
	require.Len(t, configs, 1)
	assert.True(t, configs[0].retained)

	var sensor sensorDiscovery
	require.NoError(t, json.Unmarshal(configs[0].payload, &sensor))
	assert.Equal(t, "dongleradar/"+testIMEI+"/state", sensor.StateTopic)
	assert.Equal(t, "signal_strength", sensor.DeviceClass)
	assert.Equal(t, "dBm", sensor.UnitOfMeasurement)
	assert.Equal(t, "Dongle "+testIMEI, sensor.Device.Name)
	assert.Equal(t, []string{testIMEI}, sensor.Device.Identifiers)

	notifies := conn.find("homeassistant/notify/dongleradar_" + testIMEI + "/send/config")
	require.Len(t, notifies, 1)

	var notify notifyDiscovery
	require.NoError(t, json.Unmarshal(notifies[0].payload, &notify))
	assert.Equal(t, "dongleradar/"+testIMEI+"/send", notify.CommandTopic)

	states := conn.find("dongleradar/" + testIMEI + "/state")
	require.Len(t, states, 1)
	assert.Equal(t, "-75", string(states[0].payload))
	assert.True(t, states[0].retained)

	avail := conn.find("dongleradar/" + testIMEI + "/availability")
	require.Len(t, avail, 1)
	assert.Equal(t, payloadOnline, string(avail[0].payload))

	attrs := conn.find("dongleradar/" + testIMEI + "/attributes")
	require.Len(t, attrs, 1)

	var attributes deviceAttributes
	require.NoError(t, json.Unmarshal(attrs[0].payload, &attributes))
	assert.Equal(t, "dongle0", attributes.Device)
	assert.Equal(t, "Good", attributes.SignalQuality)
	assert.Equal(t, "MTS RUS", attributes.Provider)
}

func TestApplyDiffChangedUnavailable(t *testing.T) {
	b, conn := newTestBridge(t, &mockSender{})

	device := testDevice()
	device.IsAvailable = false
	device.HasSignal = false

	b.ApplyDiff(context.Background(), &models.RegistryDiff{
		Changed: []*models.DongleDevice{device},
	})

	// An unavailable device does not get re-announced.
	assert.Empty(t, conn.find("homeassistant/sensor/dongleradar_"+testIMEI+"/signal/config"))

	avail := conn.find("dongleradar/" + testIMEI + "/availability")
	require.Len(t, avail, 1)
	assert.Equal(t, payloadOffline, string(avail[0].payload))

	states := conn.find("dongleradar/" + testIMEI + "/state")
	require.Len(t, states, 1)
	assert.Equal(t, "unknown", string(states[0].payload))
}

func TestApplyDiffRemoved(t *testing.T) {
	b, conn := newTestBridge(t, &mockSender{})

	b.ApplyDiff(context.Background(), &models.RegistryDiff{
		Removed: []string{testIMEI},
	})

	for _, topic := range []string{
		"homeassistant/sensor/dongleradar_" + testIMEI + "/signal/config",
		"homeassistant/notify/dongleradar_" + testIMEI + "/send/config",
		"dongleradar/" + testIMEI + "/state",
		"dongleradar/" + testIMEI + "/attributes",
		"dongleradar/" + testIMEI + "/availability",
	} {
		recs := conn.find(topic)
		require.Len(t, recs, 1, "expected one clearing publish on %s", topic)
		assert.True(t, recs[0].retained)
		assert.Empty(t, recs[0].payload)
	}
}

func TestHandleCommandSMS(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, testIMEI, "+79123456789", "hello").Return(nil)

	b, conn := newTestBridge(t, sender)

	b.handleCommand("dongleradar/"+testIMEI+"/send", []byte(`{"target":"+79123456789","message":"hello"}`))

	sender.AssertExpectations(t)

	results := conn.find("dongleradar/" + testIMEI + "/result")
	require.Len(t, results, 1)
	assert.False(t, results[0].retained)

	var result sendResult
	require.NoError(t, json.Unmarshal(results[0].payload, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "+79123456789", result.Target)
	assert.Empty(t, result.Error)
}

func TestHandleCommandUSSD(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, testIMEI, "*100#", "").Return(nil)

	b, _ := newTestBridge(t, sender)

	b.handleCommand("dongleradar/"+testIMEI+"/send", []byte(`{"target":"*100#"}`))

	sender.AssertExpectations(t)
}

func TestHandleCommandMalformedPayload(t *testing.T) {
	sender := &mockSender{}

	b, conn := newTestBridge(t, sender)

	b.handleCommand("dongleradar/"+testIMEI+"/send", []byte(`{not json`))

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	results := conn.find("dongleradar/" + testIMEI + "/result")
	require.Len(t, results, 1)

	var result sendResult
	require.NoError(t, json.Unmarshal(results[0].payload, &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "malformed payload")
}

func TestHandleCommandMissingTarget(t *testing.T) {
	sender := &mockSender{}

	b, conn := newTestBridge(t, sender)

	b.handleCommand("dongleradar/"+testIMEI+"/send", []byte(`{"message":"hello"}`))

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	results := conn.find("dongleradar/" + testIMEI + "/result")
	require.Len(t, results, 1)

	var result sendResult
	require.NoError(t, json.Unmarshal(results[0].payload, &result))
	assert.False(t, result.Success)
	assert.Equal(t, "target is required", result.Error)
}

func TestHandleCommandSenderError(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, testIMEI, "+79123456789", "hi").Return(errors.New("device disconnected"))

	b, conn := newTestBridge(t, sender)

	b.handleCommand("dongleradar/"+testIMEI+"/send", []byte(`{"target":"+79123456789","message":"hi"}`))

	results := conn.find("dongleradar/" + testIMEI + "/result")
	require.Len(t, results, 1)

	var result sendResult
	require.NoError(t, json.Unmarshal(results[0].payload, &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "device disconnected")
}

func TestHandleCommandBogusTopic(t *testing.T) {
	sender := &mockSender{}

	b, conn := newTestBridge(t, sender)

	b.handleCommand("otherprefix/"+testIMEI+"/send", []byte(`{"target":"*100#"}`))

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, conn.published)
}

func TestImeiFromCommandTopic(t *testing.T) {
	tests := []struct {
		topic    string
		expected string
	}{
		{"dongleradar/" + testIMEI + "/send", testIMEI},
		{"dongleradar/" + testIMEI + "/state", ""},
		{"dongleradar//send", ""},
		{"dongleradar/a/b/send", ""},
		{"other/" + testIMEI + "/send", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, imeiFromCommandTopic(tt.topic, "dongleradar"), tt.topic)
	}
}

func TestStartFailureUnblocksApplyDiff(t *testing.T) {
	config := &Config{Broker: "tcp://127.0.0.1:1"}
	require.NoError(t, config.Validate())

	b := New(config, &mockSender{}, logger.NewTestLogger())
	b.dial = func(_ *Config, _ string, _ logger.Logger) (mqttConn, error) {
		return nil, ErrConnectFailed
	}

	require.ErrorIs(t, b.Start(context.Background()), ErrConnectFailed)

	// The poller's initial diff may already be waiting; it must be released
	// even on a context without a deadline.
	done := make(chan struct{})

	go func() {
		defer close(done)

		b.ApplyDiff(context.Background(), &models.RegistryDiff{
			Added: []*models.DongleDevice{testDevice()},
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ApplyDiff blocked after a failed bridge startup")
	}

	require.NoError(t, b.Stop(context.Background()))
}

func TestHandleCommandAfterStop(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, testIMEI, "*100#", "").Return(nil)

	b, conn := newTestBridge(t, sender)

	require.NoError(t, b.Stop(context.Background()))

	// A subscription callback still in flight when Stop runs must not panic.
	b.handleCommand("dongleradar/"+testIMEI+"/send", []byte(`{"target":"*100#"}`))

	results := conn.find("dongleradar/" + testIMEI + "/result")
	require.Len(t, results, 1)
}

func TestStartStopLifecycle(t *testing.T) {
	config := &Config{Broker: "tcp://127.0.0.1:1883"}
	require.NoError(t, config.Validate())

	b := New(config, &mockSender{}, logger.NewTestLogger())

	conn := newFakeConn()
	b.dial = func(_ *Config, willTopic string, _ logger.Logger) (mqttConn, error) {
		assert.Equal(t, "dongleradar/bridge/availability", willTopic)
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()

		_, ok := conn.subscriptions["dongleradar/+/send"]

		return ok
	}, time.Second, 10*time.Millisecond)

	online := conn.find("dongleradar/bridge/availability")
	require.Len(t, online, 1)
	assert.Equal(t, payloadOnline, string(online[0].payload))
	assert.True(t, online[0].retained)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	require.NoError(t, b.Stop(context.Background()))

	avail := conn.find("dongleradar/bridge/availability")
	require.Len(t, avail, 2)
	assert.Equal(t, payloadOffline, string(avail[1].payload))

	conn.mu.Lock()
	assert.Equal(t, 1, conn.disconnects)
	conn.mu.Unlock()
}
