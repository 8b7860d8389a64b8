package telemetry

import (
	"context"

	"codeberg.org/mutker/powerwallmon/internal/powerwall"
)

// Recorder defines the contract for the time-series sink. One Reading
// becomes one "power" and one "battery" measurement sharing the
// Reading's timestamp.
type Recorder interface {
	// Connect establishes the database session
	Connect(ctx context.Context) error

	// Record writes both measurements derived from the reading
	Record(ctx context.Context, reading *powerwall.Reading) error

	// Close releases the database session
	Close() error
}
