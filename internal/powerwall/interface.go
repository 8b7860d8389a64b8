package powerwall

import (
	"context"
	"time"
)

// Device defines the contract for a Powerwall gateway session
type Device interface {
	// Connect authenticates against the gateway, establishing a session
	Connect(ctx context.Context) error

	// Fetch returns one snapshot of the gateway's instantaneous values
	Fetch(ctx context.Context) (Reading, error)

	// Close releases the session
	Close() error
}

// Reading is a snapshot of the five polled values at one instant.
// Power values are signed watts: grid positive means importing, battery
// positive means discharging, solar positive means generating, home
// positive means consuming. Level is the charge percentage (0-100).
type Reading struct {
	Timestamp time.Time
	Grid      float64
	Battery   float64
	Solar     float64
	Home      float64
	Level     float64
}
