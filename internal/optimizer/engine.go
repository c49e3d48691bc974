package optimizer

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/axion-mining/fleet-optimizer/internal/routes"
)

// Engine is the local optimizer. It walks the horizon one day at a time and
// folds the daily figures into Results. A run either completes or fails as a
// whole; no partial Results are returned.
type Engine struct {
	catalog  *routes.Catalog
	strategy Strategy
	spread   float64
	seed     uint64
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy selects the allocation policy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		e.strategy = s
	}
}

// WithJitter perturbs allocations by up to ±spread using a PCG source seeded
// with seed at the start of every run.
func WithJitter(spread float64, seed uint64) Option {
	return func(e *Engine) {
		e.spread = spread
		e.seed = seed
	}
}

// WithLogger sets the logger used for per-day debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine bound to a route catalog.
func New(catalog *routes.Catalog, opts ...Option) (*Engine, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("%w: engine requires a non-empty route catalog", ErrConfiguration)
	}

	e := &Engine{
		catalog:  catalog,
		strategy: StrategyBlend,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, err := ParseStrategy(string(e.strategy)); err != nil {
		return nil, err
	}
	if math.IsNaN(e.spread) || e.spread < 0 || e.spread > 1 {
		return nil, fmt.Errorf("%w: jitter spread must be between 0 and 1, got %v", ErrConfiguration, e.spread)
	}

	return e, nil
}

// Catalog returns the route catalog the engine allocates over.
func (e *Engine) Catalog() *routes.Catalog {
	return e.catalog
}

// Optimize runs the day loop. The context is not consulted: a run is a single
// synchronous pass with no suspension points.
func (e *Engine) Optimize(_ context.Context, params Parameters) (Results, error) {
	days, err := e.run(params)
	if err != nil {
		return Results{}, err
	}
	return aggregate(days, params), nil
}

func (e *Engine) run(params Parameters) ([]DayResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	allocator := newDailyAllocator(e.catalog, e.newPolicy())
	ledger := newBudgetLedger(e.catalog, params.NumDays)
	days := make([]DayResult, 0, params.NumDays)

	for d := 1; d <= params.NumDays; d++ {
		day, err := allocator.allocate(Period(d), params, ledger)
		if err != nil {
			e.logger.Debug("optimization run failed", zap.Int("period", d), zap.Error(err))
			return nil, err
		}
		e.logger.Debug("day allocated",
			zap.Int("period", d),
			zap.Float64("tonnage", day.Tonnage),
			zap.Float64("truck_hours", day.TruckHours),
			zap.Float64("utilization", day.RealUtilization),
			zap.Float64("deviation", day.Deviation),
		)
		days = append(days, day)
	}

	return days, nil
}

func (e *Engine) newPolicy() Policy {
	base := e.strategy.policy()
	if e.spread == 0 {
		return base
	}
	return NewJitterPolicy(base, e.spread, e.seed)
}

// aggregate folds day results, already in ascending period order, into Results.
func aggregate(days []DayResult, params Parameters) Results {
	res := Results{
		Status:             StatusHeuristic,
		UtilizationSummary: make([]UtilizationEntry, 0, len(days)),
		DailyTonnage:       make([]TonnageEntry, 0, len(days)),
		RouteAllocations:   make(map[Period]map[string]float64, len(days)),
	}

	var utilizationSum float64
	for _, day := range days {
		res.ObjectiveValue += day.Deviation
		utilizationSum += day.RealUtilization

		res.UtilizationSummary = append(res.UtilizationSummary, UtilizationEntry{
			Period:            day.Period,
			RealUtilization:   day.RealUtilization,
			TargetUtilization: day.TargetUtilization,
			Deviation:         day.Deviation,
		})
		res.DailyTonnage = append(res.DailyTonnage, TonnageEntry{
			Period:  day.Period,
			Tonnage: day.Tonnage,
		})
		res.RouteAllocations[day.Period] = day.Allocations

		if day.Tonnage < params.DailyTonnage-tolerance*max(1, params.DailyTonnage) {
			res.Status = StatusShortfall
		}
	}

	if len(days) > 0 {
		res.AvgUtilization = utilizationSum / float64(len(days))
	}
	return res
}
