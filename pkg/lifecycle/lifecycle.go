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

// Package lifecycle ties service startup, shutdown, and logging together for
// the dongleradar binaries.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/dongleradar/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Service is the contract every long-running component implements. Start
// blocks until the context is canceled or the service fails.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options configures RunServices.
type Options struct {
	ServiceName string
	Services    []Service
	Logger      logger.Logger
}

// RunServices starts every service and blocks until SIGINT/SIGTERM or the
// first service failure, then stops the services in reverse order.
func RunServices(ctx context.Context, opts *Options) error {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One service failing must unwind the others: their Start calls block on
	// this context, so it is canceled before they are stopped.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(opts.Services))

	for _, svc := range opts.Services {
		svc := svc

		go func() {
			if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Str("service", opts.ServiceName).Msg("Shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("service failure: %w", err)

		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Service failed")
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stopCancel()

	for i := len(opts.Services) - 1; i >= 0; i-- {
		if err := opts.Services[i].Stop(stopCtx); err != nil {
			log.Error().Err(err).Str("service", opts.ServiceName).Msg("Error stopping service")
		}
	}

	if err := ShutdownLogger(); err != nil {
		log.Error().Err(err).Msg("Error shutting down logger")
	}

	return runErr
}
