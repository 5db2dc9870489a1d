package bridge

import "errors"

var (
	// ErrConnectFailed indicates the MQTT broker could not be reached.
	ErrConnectFailed = errors.New("failed to connect to MQTT broker")
	// ErrPublishFailed indicates a publish was not acknowledged in time.
	ErrPublishFailed = errors.New("MQTT publish failed")
	// ErrSubscribeFailed indicates a subscription was not acknowledged in time.
	ErrSubscribeFailed = errors.New("MQTT subscribe failed")

	errBrokerRequired = errors.New("mqtt broker is required")
)
