package telemetry

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"codeberg.org/mutker/powerwallmon/internal/powerwall"
)

// Measurement names and field keys form the output schema and are part
// of the compatibility surface.
const (
	MeasurementPower   = "power"
	MeasurementBattery = "battery"
)

// buildPoints derives the two measurements from one reading. Both
// points carry the reading's capture timestamp so the series never
// diverge in time.
func buildPoints(reading *powerwall.Reading) []*write.Point {
	power := write.NewPoint(
		MeasurementPower,
		nil,
		map[string]interface{}{
			"grid":    reading.Grid,
			"battery": reading.Battery,
			"solar":   reading.Solar,
			"home":    reading.Home,
		},
		reading.Timestamp,
	)

	battery := write.NewPoint(
		MeasurementBattery,
		nil,
		map[string]interface{}{
			"level": reading.Level,
		},
		reading.Timestamp,
	)

	return []*write.Point{power, battery}
}
