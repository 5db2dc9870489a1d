package models

import (
	"time"
)

// SignalQuality buckets a dBm reading into the coarse categories chan_dongle
// users care about.
type SignalQuality string

const (
	SignalExcellent SignalQuality = "Excellent"
	SignalGood      SignalQuality = "Good"
	SignalFair      SignalQuality = "Fair"
	SignalPoor      SignalQuality = "Poor"
	SignalUnknown   SignalQuality = "Unknown"
)

// QualityFromDBM maps a signal strength in dBm to a SignalQuality bucket.
func QualityFromDBM(dbm int) SignalQuality {
	switch {
	case dbm >= -70:
		return SignalExcellent
	case dbm >= -85:
		return SignalGood
	case dbm >= -100:
		return SignalFair
	default:
		return SignalPoor
	}
}

// DongleDevice represents one GSM dongle managed by chan_dongle, keyed by IMEI.
type DongleDevice struct {
	IMEI               string        `json:"imei"`
	Name               string        `json:"name"` // chan_dongle device name, e.g. "dongle0"
	Manufacturer       string        `json:"manufacturer,omitempty"`
	Model              string        `json:"model,omitempty"`
	Firmware           string        `json:"firmware,omitempty"`
	IMSI               string        `json:"imsi,omitempty"`
	State              string        `json:"state,omitempty"`
	SignalStrength     int           `json:"signal_strength"` // dBm
	HasSignal          bool          `json:"has_signal"`
	RawRSSI            string        `json:"raw_rssi,omitempty"`
	SignalQuality      SignalQuality `json:"signal_quality"`
	Provider           string        `json:"provider,omitempty"`
	NetworkMode        string        `json:"network_mode,omitempty"`
	Submode            string        `json:"submode,omitempty"`
	RegistrationStatus string        `json:"registration_status,omitempty"`
	LAC                string        `json:"lac,omitempty"`
	CellID             string        `json:"cell_id,omitempty"`
	IsAvailable        bool          `json:"is_available"`
	LastSeen           time.Time     `json:"last_seen"`
}

// PollSnapshot is the set of devices one poll cycle observed. It is consumed
// by the registry diff step and then discarded.
type PollSnapshot struct {
	Devices  []*DongleDevice
	PolledAt time.Time
}

// RegistryDiff is the result of reconciling a PollSnapshot against the
// registry's last-known state.
type RegistryDiff struct {
	Added   []*DongleDevice
	Removed []string // IMEIs
	Changed []*DongleDevice
}

// Empty reports whether the diff carries no work for the entity bridge.
func (d *RegistryDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}
