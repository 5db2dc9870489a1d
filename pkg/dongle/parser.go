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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/dongleradar/pkg/models"
)

// deviceRef is one row of `dongle show devices`: the chan_dongle device name
// and the IMEI that keys it across polls.
type deviceRef struct {
	Name string
	IMEI string
}

var (
	imeiPattern    = regexp.MustCompile(`^\d{14,16}$`)
	rssiDBMPattern = regexp.MustCompile(`(-?\d+)\s*dBm`)
	rssiRawPattern = regexp.MustCompile(`^(\d+)\s*,`)
)

// parseDeviceList extracts device references from `dongle show devices`
// output. Rows look like:
//
//	ID        Group State   RSSI Mode Submode Provider Name Model  Firmware         IMEI            IMSI            Number
//	dongle0   0     Free    14   3    3       MTS           E1550  11.609.10.01.00  123456788935456 250991234567890 Unknown
//
// Provider names can contain spaces, so the IMEI is located as the first
// 14-16 digit field rather than by column index.
func parseDeviceList(output string) []deviceRef {
	var refs []deviceRef

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		// Header row.
		if fields[0] == "ID" {
			continue
		}

		ref := deviceRef{Name: fields[0]}

		for _, field := range fields[1:] {
			if imeiPattern.MatchString(field) {
				ref.IMEI = field
				break
			}
		}

		if ref.IMEI == "" {
			continue
		}

		refs = append(refs, ref)
	}

	return refs
}

// parseDeviceState turns `dongle show device state <name>` output into a
// key/value map. Keys are lowercased with spaces collapsed to underscores,
// matching chan_dongle's label style (e.g. "GSM Registration Status" becomes
// gsm_registration_status). Separator and banner lines are skipped.
func parseDeviceState(output string) map[string]string {
	data := make(map[string]string)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if line == "" || strings.Contains(line, "---") || strings.Contains(line, "===") {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		if key == "" {
			continue
		}

		data[key] = strings.TrimSpace(value)
	}

	return data
}

// parseRSSI extracts a dBm reading from chan_dongle's RSSI string, which
// looks like "25, -63 dBm". When only the raw 0-31 value is present it is
// converted with the GSM 07.07 formula dBm = raw*2 - 113.
func parseRSSI(raw string) (dbm int, ok bool) {
	if m := rssiDBMPattern.FindStringSubmatch(raw); m != nil {
		dbm, err := strconv.Atoi(m[1])
		return dbm, err == nil
	}

	if m := rssiRawPattern.FindStringSubmatch(raw); m != nil {
		value, err := strconv.Atoi(m[1])
		if err != nil || value > 31 {
			return 0, false
		}

		return value*2 - 113, true
	}

	return 0, false
}

// buildDevice merges a device listing row with its parsed state block into a
// DongleDevice record.
func buildDevice(ref deviceRef, state map[string]string, now time.Time) *models.DongleDevice {
	device := &models.DongleDevice{
		IMEI:               ref.IMEI,
		Name:               ref.Name,
		Manufacturer:       state["manufacturer"],
		Model:              state["model"],
		Firmware:           state["firmware"],
		IMSI:               state["imsi"],
		State:              state["state"],
		RawRSSI:            state["rssi"],
		SignalQuality:      models.SignalUnknown,
		Provider:           state["provider_name"],
		NetworkMode:        state["mode"],
		Submode:            state["submode"],
		RegistrationStatus: state["gsm_registration_status"],
		LAC:                state["location_area_code"],
		CellID:             state["cell_id"],
		IsAvailable:        true,
		LastSeen:           now,
	}

	if dbm, ok := parseRSSI(device.RawRSSI); ok {
		device.SignalStrength = dbm
		device.HasSignal = true
		device.SignalQuality = models.QualityFromDBM(dbm)
	}

	return device
}
