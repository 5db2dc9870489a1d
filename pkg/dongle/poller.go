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

// Package dongle polls chan_dongle over the Asterisk Manager Interface and
// feeds the device registry.
package dongle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/dongleradar/pkg/logger"
	"github.com/carverauto/dongleradar/pkg/models"
)

const (
	showDevicesCommand     = "dongle show devices"
	showDeviceStateCommand = "dongle show device state %s"
)

// Poller runs the discovery/state cycle on a fixed interval. A failed cycle
// is retried at the next tick only; the PBX gets no immediate retry storm.
type Poller struct {
	config    Config
	transport Transport
	store     DeviceStore
	sink      Sink
	clock     Clock
	logger    logger.Logger

	ticker    Ticker
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a poller instance. A nil clock defaults to the real clock.
func New(config *Config, transport Transport, store DeviceStore, sink Sink, clock Clock, log logger.Logger) *Poller {
	if clock == nil {
		clock = realClock{}
	}

	return &Poller{
		config:    *config,
		transport: transport,
		store:     store,
		sink:      sink,
		clock:     clock,
		logger:    log,
		done:      make(chan struct{}),
	}
}

// Start implements the lifecycle.Service interface.
func (p *Poller) Start(ctx context.Context) error {
	interval := time.Duration(p.config.ScanInterval)
	p.ticker = p.clock.Ticker(interval)

	defer p.ticker.Stop()

	p.logger.Info().Dur("interval", interval).Msg("Starting dongle poller")

	p.wg.Add(1)
	defer p.wg.Done()

	if err := p.Poll(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Error during initial poll")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-p.ticker.Chan():
			if err := p.Poll(ctx); err != nil {
				p.logger.Error().Err(err).Msg("Error during poll")
			}
		}
	}
}

// Stop implements the lifecycle.Service interface.
func (p *Poller) Stop(_ context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	p.wg.Wait()

	return nil
}

// Poll runs one discovery/state cycle and pushes the resulting diff to the
// sink. A transport failure on the device listing aborts the whole cycle
// without touching the registry, so a dead PBX never tears entities down.
func (p *Poller) Poll(ctx context.Context) error {
	output, err := p.transport.Command(ctx, showDevicesCommand)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPollFailed, err)
	}

	refs := parseDeviceList(output)
	now := p.clock.Now()

	snapshot := &models.PollSnapshot{PolledAt: now}

	for _, ref := range refs {
		device := p.pollDevice(ctx, ref, now)
		if device == nil {
			continue
		}

		snapshot.Devices = append(snapshot.Devices, device)
	}

	diff := p.store.Update(snapshot)

	p.logger.Debug().
		Int("devices", len(snapshot.Devices)).
		Int("added", len(diff.Added)).
		Int("removed", len(diff.Removed)).
		Int("changed", len(diff.Changed)).
		Msg("Poll cycle complete")

	if !diff.Empty() && p.sink != nil {
		p.sink.ApplyDiff(ctx, diff)
	}

	return nil
}

// pollDevice fetches and parses one device's state. A failure is non-fatal:
// a known device keeps its previous fields but goes unavailable, a first-seen
// device is omitted until a later cycle reads it cleanly.
func (p *Poller) pollDevice(ctx context.Context, ref deviceRef, now time.Time) *models.DongleDevice {
	output, err := p.transport.Command(ctx, fmt.Sprintf(showDeviceStateCommand, ref.Name))
	if err == nil {
		state := parseDeviceState(output)
		if len(state) > 0 {
			return buildDevice(ref, state, now)
		}

		err = fmt.Errorf("%w: empty state block", ErrPollFailed)
	}

	previous, known := p.store.Get(ref.IMEI)
	if !known {
		p.logger.Warn().
			Err(err).
			Str("device", ref.Name).
			Str("imei", ref.IMEI).
			Msg("Skipping undiscovered device with unreadable state")

		return nil
	}

	p.logger.Warn().
		Err(err).
		Str("device", ref.Name).
		Str("imei", ref.IMEI).
		Msg("Device state unreadable, keeping stale data")

	stale := *previous
	stale.IsAvailable = false
	stale.LastSeen = now

	return &stale
}
