// Package optimizer estimates how a truck fleet's tonnage is spread across
// extraction-to-destination routes day by day, and how that drives fleet
// utilization against a target.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status values reported in Results.
const (
	// StatusOptimal is reported by a real solver that proved optimality.
	StatusOptimal = "Optimal"
	// StatusHeuristic is reported by the local engine when every day met its tonnage target.
	StatusHeuristic = "Heuristic"
	// StatusShortfall is reported by the local engine when some day could not reach its tonnage target.
	StatusShortfall = "Heuristic (Shortfall)"
)

// Optimizer produces Results for a set of Parameters. The local Engine and the
// remote solver client are interchangeable behind it.
type Optimizer interface {
	Optimize(ctx context.Context, params Parameters) (Results, error)
}

// Period is a 1-based day index. It is encoded as a JSON string ("1") and
// accepts both strings and numbers when decoding.
type Period int

func (p Period) String() string {
	return strconv.Itoa(int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(text []byte) error {
	n, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid period %q", text)
	}
	*p = Period(n)
	return nil
}

// UnmarshalJSON accepts "3" as well as 3.
func (p *Period) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return p.UnmarshalText([]byte(s))
	}
	return p.UnmarshalText(data)
}

// UtilizationEntry summarises one day's utilization.
type UtilizationEntry struct {
	Period            Period  `json:"period"`
	RealUtilization   float64 `json:"realUtilization"`
	TargetUtilization float64 `json:"targetUtilization"`
	Deviation         float64 `json:"deviation"`
}

// TonnageEntry is the total tonnage moved on one day.
type TonnageEntry struct {
	Period  Period  `json:"period"`
	Tonnage float64 `json:"tonnage"`
}

// Results is the outcome of a run. Its JSON shape is shared with the external
// solver service.
type Results struct {
	Status             string                        `json:"status"`
	ObjectiveValue     float64                       `json:"objectiveValue"`
	UtilizationSummary []UtilizationEntry            `json:"utilizationSummary"`
	DailyTonnage       []TonnageEntry                `json:"dailyTonnage"`
	RouteAllocations   map[Period]map[string]float64 `json:"routeAllocations"`
	AvgUtilization     float64                       `json:"avgUtilization"`
}

// DayResult holds the figures computed for a single day of a run.
type DayResult struct {
	Period            Period
	Allocations       map[string]float64
	Tonnage           float64
	TruckHours        float64
	AvailableHours    float64
	RealUtilization   float64
	TargetUtilization float64
	Deviation         float64
}
