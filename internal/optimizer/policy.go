package optimizer

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

// DayInput is what an allocation policy sees for one day. Slices are indexed
// by catalog position.
type DayInput struct {
	Period            Period
	Ceilings          []float64
	Yields            []float64
	TargetTonnage     float64
	AvailableHours    float64
	TargetUtilization float64
}

// Policy decides how many tons each route carries on a day. Results must lie
// within [0, Ceilings[i]].
type Policy interface {
	Allocate(in DayInput) []float64
}

// Strategy names a built-in Policy.
type Strategy string

const (
	// StrategyBlend mixes yield-ordered fills to approach the target utilization.
	StrategyBlend Strategy = "blend"
	// StrategyProportional scales every route's ceiling by the same fraction.
	StrategyProportional Strategy = "proportional"
)

// ParseStrategy resolves a strategy name; the empty string selects StrategyBlend.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyBlend, nil
	case StrategyBlend, StrategyProportional:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown allocation strategy %q", ErrConfiguration, name)
	}
}

func (s Strategy) policy() Policy {
	if s == StrategyProportional {
		return ProportionalPolicy{}
	}
	return BlendPolicy{}
}

// ProportionalPolicy fills every route to the same fraction of its ceiling.
type ProportionalPolicy struct{}

// Allocate implements Policy.
func (ProportionalPolicy) Allocate(in DayInput) []float64 {
	out := make([]float64, len(in.Ceilings))
	total := sum(in.Ceilings)
	if total <= 0 || in.TargetTonnage <= 0 {
		return out
	}
	fraction := min(1, in.TargetTonnage/total)
	for i, c := range in.Ceilings {
		out[i] = c * fraction
	}
	return out
}

// BlendPolicy moves exactly the target tonnage when the ceilings allow it,
// choosing the mix of fast and slow routes whose truck-hours best match the
// target utilization. Utilization is linear in the allocation, so a convex
// combination of the fastest-first and slowest-first fills hits any target
// between their utilizations exactly.
type BlendPolicy struct{}

// Allocate implements Policy.
func (BlendPolicy) Allocate(in DayInput) []float64 {
	n := len(in.Ceilings)
	if in.TargetTonnage >= sum(in.Ceilings) {
		return slices.Clone(in.Ceilings)
	}
	if in.TargetTonnage <= 0 {
		return make([]float64, n)
	}

	fastFirst := make([]int, n)
	for i := range fastFirst {
		fastFirst[i] = i
	}
	slowFirst := slices.Clone(fastFirst)
	slices.SortStableFunc(fastFirst, func(a, b int) int {
		return cmp.Compare(in.Yields[b], in.Yields[a])
	})
	slices.SortStableFunc(slowFirst, func(a, b int) int {
		return cmp.Compare(in.Yields[a], in.Yields[b])
	})

	low := greedyFill(in.Ceilings, fastFirst, in.TargetTonnage)
	high := greedyFill(in.Ceilings, slowFirst, in.TargetTonnage)
	uLow := truckHours(low, in.Yields) / in.AvailableHours
	uHigh := truckHours(high, in.Yields) / in.AvailableHours

	switch {
	case in.TargetUtilization <= uLow:
		return low
	case in.TargetUtilization >= uHigh:
		return high
	}

	lambda := (uHigh - in.TargetUtilization) / (uHigh - uLow)
	out := make([]float64, n)
	for i := range out {
		out[i] = min(in.Ceilings[i], max(0, lambda*low[i]+(1-lambda)*high[i]))
	}
	return out
}

// JitterPolicy perturbs a base policy with a seeded pseudo-random factor in
// [1-Spread, 1+Spread]. Two runs with the same seed produce identical output.
type JitterPolicy struct {
	base   Policy
	spread float64
	rng    *rand.Rand
}

// NewJitterPolicy wraps base with a PCG source seeded from seed.
func NewJitterPolicy(base Policy, spread float64, seed uint64) *JitterPolicy {
	return &JitterPolicy{
		base:   base,
		spread: spread,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Allocate implements Policy.
func (j *JitterPolicy) Allocate(in DayInput) []float64 {
	out := j.base.Allocate(in)
	for i := range out {
		factor := 1 + j.spread*(2*j.rng.Float64()-1)
		out[i] = min(in.Ceilings[i], max(0, out[i]*factor))
	}
	return out
}

func greedyFill(ceilings []float64, order []int, target float64) []float64 {
	out := make([]float64, len(ceilings))
	remaining := target
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		take := min(ceilings[i], remaining)
		out[i] = take
		remaining -= take
	}
	return out
}

func truckHours(alloc, yields []float64) float64 {
	var hours float64
	for i, tons := range alloc {
		hours += tons / yields[i]
	}
	return hours
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
