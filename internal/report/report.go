// Package report renders optimization Results as CSV for download.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
)

// Kind selects which table is exported.
type Kind string

const (
	// KindUtilization is one row per day with utilization and tonnage.
	KindUtilization Kind = "utilization"
	// KindAllocations is one row per day and route with the tons assigned.
	KindAllocations Kind = "allocations"
)

const (
	percentPlaces = 2
	tonPlaces     = 1
)

// ParseKind resolves a kind name; the empty string selects KindUtilization.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindUtilization, nil
	case KindUtilization, KindAllocations:
		return k, nil
	default:
		return "", fmt.Errorf("unknown report kind %q", s)
	}
}

// WriteCSV writes the requested table for res to w.
func WriteCSV(w io.Writer, res optimizer.Results, kind Kind) error {
	cw := csv.NewWriter(w)

	var rows [][]string
	switch kind {
	case KindUtilization:
		rows = utilizationRows(res)
	case KindAllocations:
		rows = allocationRows(res)
	default:
		return fmt.Errorf("unknown report kind %q", kind)
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func utilizationRows(res optimizer.Results) [][]string {
	tonnage := make(map[optimizer.Period]float64, len(res.DailyTonnage))
	for _, t := range res.DailyTonnage {
		tonnage[t.Period] = t.Tonnage
	}

	rows := [][]string{{"period", "real_utilization_pct", "target_utilization_pct", "deviation_pct", "tonnage"}}
	for _, u := range res.UtilizationSummary {
		rows = append(rows, []string{
			u.Period.String(),
			Percent(u.RealUtilization),
			Percent(u.TargetUtilization),
			Percent(u.Deviation),
			Tons(tonnage[u.Period]),
		})
	}
	if n := len(res.UtilizationSummary); n > 0 {
		rows = append(rows,
			[]string{"average", Percent(res.AvgUtilization), "", Percent(res.ObjectiveValue / float64(n)), ""},
			[]string{"objective", "", "", Percent(res.ObjectiveValue), ""},
		)
	}
	return rows
}

func allocationRows(res optimizer.Results) [][]string {
	periods := make([]optimizer.Period, 0, len(res.RouteAllocations))
	for p := range res.RouteAllocations {
		periods = append(periods, p)
	}
	slices.Sort(periods)

	rows := [][]string{{"period", "route", "tons"}}
	for _, p := range periods {
		day := res.RouteAllocations[p]
		ids := make([]string, 0, len(day))
		for id := range day {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			rows = append(rows, []string{p.String(), id, Tons(day[id])})
		}
	}
	return rows
}

// Percent formats a fraction as a percentage with two decimals, rounding half away from zero.
func Percent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Shift(2).StringFixed(percentPlaces)
}

// Tons formats a tonnage with one decimal.
func Tons(tons float64) string {
	return decimal.NewFromFloat(tons).StringFixed(tonPlaces)
}
