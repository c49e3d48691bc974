package optimizer

import (
	"errors"
	"math"
	"testing"
)

func blendInput(target, targetUtil float64) DayInput {
	return DayInput{
		Period:            1,
		Ceilings:          []float64{100, 100},
		Yields:            []float64{10, 5},
		TargetTonnage:     target,
		AvailableHours:    20,
		TargetUtilization: targetUtil,
	}
}

func TestBlendPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     DayInput
		want   []float64
		wantU  float64
		checkU bool
	}{
		{name: "HitsTargetBetweenExtremes", in: blendInput(100, 0.75), want: []float64{50, 50}, wantU: 0.75, checkU: true},
		{name: "ClampsToFastFill", in: blendInput(100, 0.2), want: []float64{100, 0}},
		{name: "ClampsToSlowFill", in: blendInput(100, 1), want: []float64{0, 100}},
		{name: "TargetAboveCapacity", in: blendInput(500, 0.5), want: []float64{100, 100}},
		{name: "ZeroTarget", in: blendInput(0, 0.5), want: []float64{0, 0}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := BlendPolicy{}.Allocate(tc.in)
			for i := range tc.want {
				if math.Abs(got[i]-tc.want[i]) > 1e-9 {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
			if tc.checkU {
				u := truckHours(got, tc.in.Yields) / tc.in.AvailableHours
				if math.Abs(u-tc.wantU) > 1e-9 {
					t.Fatalf("expected utilization %v, got %v", tc.wantU, u)
				}
			}
		})
	}
}

func TestBlendPolicyDoesNotAliasCeilings(t *testing.T) {
	t.Parallel()

	in := blendInput(500, 0.5)
	got := BlendPolicy{}.Allocate(in)
	got[0] = -1
	if in.Ceilings[0] != 100 {
		t.Fatalf("policy output aliases the ceilings slice")
	}
}

func TestProportionalPolicy(t *testing.T) {
	t.Parallel()

	in := DayInput{Ceilings: []float64{100, 50, 0}, Yields: []float64{1, 1, 1}, TargetTonnage: 75}
	got := ProportionalPolicy{}.Allocate(in)
	want := []float64{50, 25, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	in.TargetTonnage = 1000
	got = ProportionalPolicy{}.Allocate(in)
	if got[0] != 100 || got[1] != 50 {
		t.Fatalf("expected ceilings when target exceeds capacity, got %v", got)
	}
}

func TestJitterPolicyStaysWithinCeilings(t *testing.T) {
	t.Parallel()

	p := NewJitterPolicy(ProportionalPolicy{}, 1, 99)
	in := DayInput{Ceilings: []float64{10, 20, 30}, Yields: []float64{1, 2, 3}, TargetTonnage: 1000}
	for i := 0; i < 100; i++ {
		for j, tons := range p.Allocate(in) {
			if tons < 0 || tons > in.Ceilings[j] {
				t.Fatalf("allocation %v outside [0, %v]", tons, in.Ceilings[j])
			}
		}
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]Strategy{
		"":              StrategyBlend,
		"blend":         StrategyBlend,
		" Proportional": StrategyProportional,
	} {
		got, err := ParseStrategy(input)
		if err != nil {
			t.Fatalf("ParseStrategy(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseStrategy(%q) = %q, want %q", input, got, want)
		}
	}

	if _, err := ParseStrategy("lp"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

type brokenPolicy struct {
	out []float64
}

func (b brokenPolicy) Allocate(DayInput) []float64 { return b.out }

func TestAllocatorRejectsInvalidPolicyOutput(t *testing.T) {
	t.Parallel()

	catalog := smallCatalog(t)
	params := Parameters{NumDays: 1, NumTrucks: 1, HoursPerDay: 10, TargetUtilization: 0.5, DailyTonnage: 10}

	for name, out := range map[string][]float64{
		"WrongLength": {1},
		"NaN":         {math.NaN(), 0},
		"Negative":    {-5, 0},
		"AboveCeil":   {1e9, 0},
	} {
		out := out
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			a := newDailyAllocator(catalog, brokenPolicy{out: out})
			ledger := newBudgetLedger(catalog, 1)
			if _, err := a.allocate(1, params, ledger); !errors.Is(err, ErrComputation) {
				t.Fatalf("expected ErrComputation, got %v", err)
			}
			if ledger.daysLeft != 1 || ledger.remaining[0] != 100 {
				t.Fatalf("ledger modified on failure")
			}
		})
	}
}
