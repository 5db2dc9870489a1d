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

// Package dispatch routes outbound messages to a dongle as either SMS or
// USSD through the Asterisk Manager Interface.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/carverauto/dongleradar/pkg/ami"
	"github.com/carverauto/dongleradar/pkg/logger"
)

// DeviceResolver maps an IMEI to the chan_dongle device name.
type DeviceResolver interface {
	Resolve(imei string) (string, error)
}

// ActionSender executes AMI actions.
type ActionSender interface {
	Send(ctx context.Context, action ami.Action) (*ami.Response, error)
}

// IsUSSD classifies a target string: a USSD code starts with '*' and ends
// with '#', anything else is an SMS destination number. The rule is purely
// syntactic; a phone number that happens to match it will be sent as USSD.
func IsUSSD(target string) bool {
	return strings.HasPrefix(target, "*") && strings.HasSuffix(target, "#")
}

// Dispatcher sends SMS and USSD requests for registered dongles. It performs
// no retries; a failed send is the caller's to repeat.
type Dispatcher struct {
	resolver DeviceResolver
	sender   ActionSender
	logger   logger.Logger
}

// New creates a dispatcher.
func New(resolver DeviceResolver, sender ActionSender, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		sender:   sender,
		logger:   log,
	}
}

// Send delivers message to target through the dongle identified by imei.
// For USSD targets the message is ignored entirely; the code itself is the
// request.
func (d *Dispatcher) Send(ctx context.Context, imei, target, message string) error {
	device, err := d.resolver.Resolve(imei)
	if err != nil {
		return fmt.Errorf("dispatch to %s: %w", imei, err)
	}

	var action ami.Action

	if IsUSSD(target) {
		action = ami.NewAction("DongleSendUSSD")
		action["Device"] = device
		action["USSD"] = target

		d.logger.Debug().
			Str("device", device).
			Str("ussd", target).
			Msg("Sending USSD request")
	} else {
		action = ami.NewAction("DongleSendSMS")
		action["Device"] = device
		action["Number"] = target
		action["Message"] = message

		d.logger.Debug().
			Str("device", device).
			Str("number", target).
			Msg("Sending SMS")
	}

	resp, err := d.sender.Send(ctx, action)
	if err != nil {
		return fmt.Errorf("dispatch via %s: %w", device, err)
	}

	d.logger.Debug().
		Str("device", device).
		Str("response", resp.Message()).
		Msg("Dispatch accepted")

	return nil
}
