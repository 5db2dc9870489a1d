package dongle

import (
	"context"
	"time"

	"github.com/carverauto/dongleradar/pkg/models"
)

// Transport abstracts the AMI console command channel the poller runs on.
type Transport interface {
	Command(ctx context.Context, command string) (string, error)
}

// DeviceStore reconciles poll snapshots against last-known device state.
type DeviceStore interface {
	Update(snapshot *models.PollSnapshot) *models.RegistryDiff
	Get(imei string) (*models.DongleDevice, bool)
}

// Sink consumes registry diffs, typically to drive entity lifecycle in the
// home automation layer.
type Sink interface {
	ApplyDiff(ctx context.Context, diff *models.RegistryDiff)
}

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
