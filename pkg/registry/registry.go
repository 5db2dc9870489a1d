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

// Package registry owns the last-known set of dongle devices. It is the only
// place join/leave decisions are made, which keeps entity creation races out
// of the bridge layer.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/carverauto/dongleradar/pkg/logger"
	"github.com/carverauto/dongleradar/pkg/models"
)

// ErrUnknownDevice indicates no registered dongle carries the given IMEI.
var ErrUnknownDevice = errors.New("unknown device")

// Registry holds DongleDevice records keyed by IMEI. It owns the records
// exclusively; accessors hand out copies.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*models.DongleDevice
	logger  logger.Logger
}

// New creates an empty registry.
func New(log logger.Logger) *Registry {
	return &Registry{
		devices: make(map[string]*models.DongleDevice),
		logger:  log,
	}
}

// Update reconciles a poll snapshot against the registry and returns the
// diff. Duplicate IMEIs within one snapshot collapse last-write-wins. A
// record exists after Update if and only if the snapshot reported it.
func (r *Registry) Update(snapshot *models.PollSnapshot) *models.RegistryDiff {
	incoming := make(map[string]*models.DongleDevice, len(snapshot.Devices))

	for _, device := range snapshot.Devices {
		if device.IMEI == "" {
			continue
		}

		copied := *device
		incoming[device.IMEI] = &copied
	}

	diff := &models.RegistryDiff{}

	r.mu.Lock()
	defer r.mu.Unlock()

	for imei, device := range incoming {
		previous, exists := r.devices[imei]
		if !exists {
			r.devices[imei] = device
			out := *device
			diff.Added = append(diff.Added, &out)

			r.logger.Info().
				Str("imei", imei).
				Str("device", device.Name).
				Msg("Dongle discovered")

			continue
		}

		if !equalDevices(previous, device) {
			out := *device
			diff.Changed = append(diff.Changed, &out)
		}

		r.devices[imei] = device
	}

	for imei, device := range r.devices {
		if _, present := incoming[imei]; present {
			continue
		}

		delete(r.devices, imei)
		diff.Removed = append(diff.Removed, imei)

		r.logger.Info().
			Str("imei", imei).
			Str("device", device.Name).
			Msg("Dongle removed")
	}

	sortDiff(diff)

	return diff
}

// Get returns a copy of the record for the given IMEI.
func (r *Registry) Get(imei string) (*models.DongleDevice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[imei]
	if !ok {
		return nil, false
	}

	copied := *device

	return &copied, true
}

// Resolve maps an IMEI to the chan_dongle device name AMI commands address.
func (r *Registry) Resolve(imei string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[imei]
	if !ok {
		return "", ErrUnknownDevice
	}

	return device.Name, nil
}

// List returns copies of all records ordered by IMEI.
func (r *Registry) List() []*models.DongleDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*models.DongleDevice, 0, len(r.devices))

	for _, device := range r.devices {
		copied := *device
		devices = append(devices, &copied)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].IMEI < devices[j].IMEI })

	return devices
}

// equalDevices compares the fields the entity bridge cares about. LastSeen
// advances every cycle and would otherwise mark every device changed.
func equalDevices(a, b *models.DongleDevice) bool {
	x := *a
	y := *b
	x.LastSeen = y.LastSeen

	return x == y
}

func sortDiff(diff *models.RegistryDiff) {
	sort.Slice(diff.Added, func(i, j int) bool { return diff.Added[i].IMEI < diff.Added[j].IMEI })
	sort.Slice(diff.Changed, func(i, j int) bool { return diff.Changed[i].IMEI < diff.Changed[j].IMEI })
	sort.Strings(diff.Removed)
}
