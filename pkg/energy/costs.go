package energy

// Seconds per billing horizon. The month and year figures are the fixed
// 30-day and 365-day conventions used throughout the dashboard, so all five
// cost values stay exact multiples of the per-second base.
const (
	secondsPerHour  = 3600.0
	hoursPerDay     = 24.0
	daysPerMonth    = 30.0
	daysPerYear     = 365.0
)

// Costs holds the monetary cost of a constant power draw over the five
// billing horizons, in the user's display currency.
type Costs struct {
	PerSecond float64
	PerHour   float64
	PerDay    float64
	PerMonth  float64
	PerYear   float64
}

// DeriveCosts converts an instantaneous power draw into cost figures under a
// per-kWh electricity rate and a conversion factor relative to the base
// currency. The five values are mutually consistent by construction:
// PerHour = kW * rate * factor, PerSecond = PerHour/3600, PerDay = PerHour*24,
// PerMonth = PerDay*30, PerYear = PerDay*365.
func DeriveCosts(powerWatts, electricityRate, conversionFactor float64) (Costs, error) {
	if powerWatts < 0 || electricityRate <= 0 || conversionFactor <= 0 {
		return Costs{}, ErrInvalidInput
	}

	perHour := powerWatts / 1000 * electricityRate * conversionFactor
	perDay := perHour * hoursPerDay

	return Costs{
		PerSecond: perHour / secondsPerHour,
		PerHour:   perHour,
		PerDay:    perDay,
		PerMonth:  perDay * daysPerMonth,
		PerYear:   perDay * daysPerYear,
	}, nil
}
