package optimizer

import (
	"fmt"
	"math"
)

const (
	// DefaultAvailability is used for days missing from FleetAvailability.
	DefaultAvailability = 0.75
	// MaxDays bounds the planning horizon to ten years of daily periods.
	MaxDays = 3660
	// MaxHoursPerDay is the length of an operating day.
	MaxHoursPerDay = 24.0
)

// Parameters configure one optimization run.
type Parameters struct {
	NumDays           int                `json:"numDays" yaml:"num_days"`
	NumTrucks         int                `json:"numTrucks" yaml:"num_trucks"`
	HoursPerDay       float64            `json:"hoursPerDay" yaml:"hours_per_day"`
	FleetAvailability map[Period]float64 `json:"fleetAvailability" yaml:"fleet_availability"`
	TargetUtilization float64            `json:"targetUtilization" yaml:"target_utilization"`
	DailyTonnage      float64            `json:"dailyTonnage" yaml:"daily_tonnage"`
}

var defaultAvailability = []float64{
	0.58, 0.75, 0.60, 0.77, 0.85, 0.78, 0.64,
	0.80, 0.68, 0.77, 0.66, 0.88, 0.85, 0.85,
	0.79, 0.88, 0.85, 0.77, 0.88, 0.65, 0.76,
	0.77, 0.87, 0.71, 0.75, 0.55, 0.87, 0.87,
	0.86, 0.82, 0.77,
}

// DefaultParameters returns the reference month used by the planning team.
func DefaultParameters() Parameters {
	availability := make(map[Period]float64, len(defaultAvailability))
	for i, v := range defaultAvailability {
		availability[Period(i+1)] = v
	}
	return Parameters{
		NumDays:           len(defaultAvailability),
		NumTrucks:         8,
		HoursPerDay:       24,
		FleetAvailability: availability,
		TargetUtilization: 0.72,
		DailyTonnage:      70000,
	}
}

// BaseParameters returns the values applied to fields a request omits. It has
// no availability table, so every unlisted day uses DefaultAvailability.
func BaseParameters() Parameters {
	p := DefaultParameters()
	p.FleetAvailability = map[Period]float64{}
	return p
}

// Availability returns the fleet availability fraction for a day.
func (p Parameters) Availability(day Period) float64 {
	if v, ok := p.FleetAvailability[day]; ok {
		return v
	}
	return DefaultAvailability
}

// Clone returns a deep copy of p.
func (p Parameters) Clone() Parameters {
	out := p
	if p.FleetAvailability != nil {
		out.FleetAvailability = make(map[Period]float64, len(p.FleetAvailability))
		for k, v := range p.FleetAvailability {
			out.FleetAvailability[k] = v
		}
	}
	return out
}

// Validate checks that every field lies within its domain.
func (p Parameters) Validate() error {
	if p.NumDays <= 0 || p.NumDays > MaxDays {
		return fmt.Errorf("%w: numDays must be between 1 and %d (planning horizon of up to ten years), got %d", ErrValidation, MaxDays, p.NumDays)
	}
	if p.NumTrucks <= 0 {
		return fmt.Errorf("%w: numTrucks must be a positive integer, got %d", ErrValidation, p.NumTrucks)
	}
	if !inRange(p.HoursPerDay, 0, MaxHoursPerDay) {
		return fmt.Errorf("%w: hoursPerDay must be between 0 and %g, got %v", ErrValidation, MaxHoursPerDay, p.HoursPerDay)
	}
	if !inRange(p.TargetUtilization, 0, 1) {
		return fmt.Errorf("%w: targetUtilization must be between 0 and 1, got %v", ErrValidation, p.TargetUtilization)
	}
	if math.IsNaN(p.DailyTonnage) || math.IsInf(p.DailyTonnage, 0) || p.DailyTonnage < 0 {
		return fmt.Errorf("%w: dailyTonnage must be a non-negative number, got %v", ErrValidation, p.DailyTonnage)
	}
	for day, v := range p.FleetAvailability {
		if day < 1 {
			return fmt.Errorf("%w: fleetAvailability day must be >= 1, got %d", ErrValidation, day)
		}
		if !inRange(v, 0, 1) {
			return fmt.Errorf("%w: fleetAvailability for day %d must be between 0 and 1, got %v", ErrValidation, day, v)
		}
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
