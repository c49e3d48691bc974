package optimizer

import (
	"fmt"
	"math"

	"github.com/axion-mining/fleet-optimizer/internal/routes"
)

const (
	// safetyMargin keeps each route below its theoretical capacity.
	safetyMargin = 0.8
	tolerance    = 1e-9
)

// budgetLedger tracks the tonnage left on each route for the rest of a run.
type budgetLedger struct {
	remaining []float64
	daysLeft  int
}

func newBudgetLedger(catalog *routes.Catalog, days int) *budgetLedger {
	remaining := make([]float64, catalog.Len())
	for i := range remaining {
		remaining[i] = catalog.At(i).Budget
	}
	return &budgetLedger{remaining: remaining, daysLeft: days}
}

// ceiling spreads what is left of the route's budget evenly over the days left.
func (l *budgetLedger) ceiling(i int) float64 {
	return l.remaining[i] / float64(l.daysLeft)
}

func (l *budgetLedger) commit(alloc []float64) {
	for i, tons := range alloc {
		l.remaining[i] = max(0, l.remaining[i]-tons)
	}
	l.daysLeft--
}

// dailyAllocator distributes one day's tonnage over the catalog.
type dailyAllocator struct {
	catalog *routes.Catalog
	yields  []float64
	policy  Policy
}

func newDailyAllocator(catalog *routes.Catalog, policy Policy) *dailyAllocator {
	yields := make([]float64, catalog.Len())
	for i := range yields {
		yields[i] = catalog.At(i).Yield
	}
	return &dailyAllocator{catalog: catalog, yields: yields, policy: policy}
}

// allocate computes the day's allocation and commits it to the ledger. The
// ledger is left untouched when an error is returned.
func (a *dailyAllocator) allocate(day Period, params Parameters, ledger *budgetLedger) (DayResult, error) {
	availability := params.Availability(day)
	switch {
	case params.NumTrucks == 0:
		return DayResult{}, fmt.Errorf("day %d: %w: fleet size is zero", day, ErrDivisionByZero)
	case params.HoursPerDay == 0:
		return DayResult{}, fmt.Errorf("day %d: %w: operating hours per day is zero", day, ErrDivisionByZero)
	case availability == 0:
		return DayResult{}, fmt.Errorf("day %d: %w: fleet availability is zero", day, ErrDivisionByZero)
	}

	availableHours := params.HoursPerDay * availability * float64(params.NumTrucks)
	if availableHours == 0 {
		return DayResult{}, fmt.Errorf("day %d: %w: available truck-hours underflow to zero", day, ErrDivisionByZero)
	}

	n := len(a.yields)
	ceilings := make([]float64, n)
	for i, y := range a.yields {
		capacity := availableHours * y
		ceilings[i] = min(capacity*safetyMargin, ledger.ceiling(i))
	}

	in := DayInput{
		Period:            day,
		Ceilings:          ceilings,
		Yields:            a.yields,
		TargetTonnage:     params.DailyTonnage,
		AvailableHours:    availableHours,
		TargetUtilization: params.TargetUtilization,
	}
	alloc := a.policy.Allocate(in)
	if len(alloc) != n {
		return DayResult{}, fmt.Errorf("day %d: %w: policy returned %d allocations for %d routes", day, ErrComputation, len(alloc), n)
	}

	result := DayResult{
		Period:            day,
		Allocations:       make(map[string]float64, n),
		AvailableHours:    availableHours,
		TargetUtilization: params.TargetUtilization,
	}
	for i, tons := range alloc {
		if err := checkBounds(tons, ceilings[i]); err != nil {
			return DayResult{}, fmt.Errorf("day %d route %s: %w", day, a.catalog.At(i).ID(), err)
		}
		tons = min(max(tons, 0), ceilings[i])
		alloc[i] = tons
		result.Allocations[a.catalog.At(i).ID()] = tons
		result.Tonnage += tons
		result.TruckHours += tons / a.yields[i]
	}

	result.RealUtilization = result.TruckHours / availableHours
	if !finite(result.RealUtilization) || !finite(result.Tonnage) {
		return DayResult{}, fmt.Errorf("day %d: %w: non-finite utilization", day, ErrComputation)
	}
	result.Deviation = math.Abs(result.RealUtilization - params.TargetUtilization)

	ledger.commit(alloc)
	return result, nil
}

func checkBounds(tons, ceiling float64) error {
	if !finite(tons) {
		return fmt.Errorf("%w: allocation %v is not finite", ErrComputation, tons)
	}
	slack := tolerance * max(1, ceiling)
	if tons < -slack || tons > ceiling+slack {
		return fmt.Errorf("%w: allocation %v outside [0, %v]", ErrComputation, tons, ceiling)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
