package dongle

import "errors"

var (
	// ErrPollFailed indicates one poll cycle could not complete. Existing
	// devices stay registered; the next tick retries.
	ErrPollFailed = errors.New("dongle poll failed")

	errScanIntervalInvalid = errors.New("scan_interval must be positive")
)
