// Package energy provides the pure simulation and conversion math for the
// telemetry pipeline: instantaneous power draw on a diurnal curve and the
// derivation of monetary cost figures from a power sample.
package energy

import (
	"errors"
	"math/rand"
)

// Diurnal multipliers applied to a device's rated wattage by hour of day.
const (
	morningMultiplier = 1.3 // hours 06-09
	eveningMultiplier = 1.4 // hours 18-23
	nightMultiplier   = 0.6 // hours 00-05
	basePowerFactor   = 1.0
)

// jitterFraction is the half-width of the uniform jitter band around the
// diurnal output, i.e. each sample lands in [-10%, +10%] of the curve value.
const jitterFraction = 0.10

// MaxPowerFactor bounds Simulate's output relative to rated wattage:
// peak diurnal multiplier times the jitter ceiling.
const MaxPowerFactor = eveningMultiplier * (1 + jitterFraction)

// Nominal grid values used for the display-only electrical readings.
const (
	nominalVoltage   = 220.0
	nominalFrequency = 50.0
)

// ErrInvalidInput reports malformed parameters to Simulate or DeriveCosts.
// Callers are expected to validate before invoking; it is never coerced away.
var ErrInvalidInput = errors.New("energy: invalid input")

// Simulate returns a synthetic instantaneous power draw in watts for a device
// with the given rated wattage at the given hour of day. The diurnal curve
// boosts morning and evening hours, suppresses night hours, and applies
// uniform jitter in [-10%, +10%]. The result is clamped to be non-negative
// and never exceeds ratedWatts * MaxPowerFactor.
func Simulate(ratedWatts float64, hourOfDay int) (float64, error) {
	if ratedWatts <= 0 {
		return 0, ErrInvalidInput
	}
	if hourOfDay < 0 || hourOfDay > 23 {
		return 0, ErrInvalidInput
	}

	watts := ratedWatts * diurnalFactor(hourOfDay)

	// Uniform jitter in [-jitterFraction, +jitterFraction].
	jitter := (rand.Float64()*2 - 1) * jitterFraction // #nosec G404 - weak random is acceptable for simulation
	watts *= 1 + jitter

	if watts < 0 {
		watts = 0
	}
	return watts, nil
}

// diurnalFactor returns the load multiplier for an hour in [0, 23].
func diurnalFactor(hour int) float64 {
	switch {
	case hour >= 6 && hour <= 9:
		return morningMultiplier
	case hour >= 18 && hour <= 23:
		return eveningMultiplier
	case hour >= 0 && hour <= 5:
		return nightMultiplier
	default:
		return basePowerFactor
	}
}

// Electrical holds display-only line readings. They are simulated with small
// jitter around nominal grid values and never feed cost computation.
type Electrical struct {
	Voltage   float64
	Current   float64
	Frequency float64
}

// SimulateElectrical returns voltage, current and frequency readings for a
// device currently drawing powerWatts. Voltage jitters within ±2% of 220 V,
// frequency within ±0.4% of 50 Hz, and current follows from I = P/V.
func SimulateElectrical(powerWatts float64) Electrical {
	voltage := nominalVoltage * (1 + (rand.Float64()*2-1)*0.02)    // #nosec G404
	frequency := nominalFrequency * (1 + (rand.Float64()*2-1)*0.004) // #nosec G404

	return Electrical{
		Voltage:   voltage,
		Current:   powerWatts / voltage,
		Frequency: frequency,
	}
}
