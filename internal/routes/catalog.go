package routes

import (
	"fmt"
	"math"
	"strings"
)

// Definition is the raw description of a route before validation.
type Definition struct {
	Solid        string  `json:"solid" yaml:"solid"`
	Destination  string  `json:"destination" yaml:"destination"`
	CycleMinutes float64 `json:"cycleMinutes" yaml:"cycle_minutes"`
	Budget       float64 `json:"budget" yaml:"budget"`
}

// Route is a validated route with its derived effective yield.
type Route struct {
	Solid       string  `json:"solid"`
	Destination string  `json:"destination"`
	CycleHours  float64 `json:"cycleTimeHours"`
	Payload     float64 `json:"truckPayload"`
	Budget      float64 `json:"totalBudget"`
	Yield       float64 `json:"effectiveYield"`
}

// ID returns the key used for the route in allocation maps.
func (r Route) ID() string {
	return r.Solid + "-" + r.Destination
}

// Catalog is an immutable, ordered set of routes.
type Catalog struct {
	routes []Route
	index  map[string]int
}

// NewCatalog validates the definitions against the destination payload table
// and computes each route's effective yield (payload / cycle time, in tons per
// truck-hour). Every inconsistency is reported here rather than during a run.
func NewCatalog(defs []Definition, payloads map[string]float64) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no routes defined", ErrConfiguration)
	}

	c := &Catalog{
		routes: make([]Route, 0, len(defs)),
		index:  make(map[string]int, len(defs)),
	}

	for _, def := range defs {
		solid := strings.TrimSpace(def.Solid)
		dest := strings.TrimSpace(def.Destination)
		if solid == "" || dest == "" {
			return nil, fmt.Errorf("%w: route %q-%q has an empty endpoint", ErrConfiguration, def.Solid, def.Destination)
		}

		payload, ok := payloads[dest]
		if !ok {
			return nil, fmt.Errorf("%w: no truck payload registered for destination %q", ErrConfiguration, dest)
		}
		if !positiveFinite(payload) {
			return nil, fmt.Errorf("%w: truck payload for destination %q must be positive, got %v", ErrConfiguration, dest, payload)
		}
		if !positiveFinite(def.CycleMinutes) {
			return nil, fmt.Errorf("%w: route %s-%s has missing or non-positive cycle time", ErrConfiguration, solid, dest)
		}
		if def.Budget < 0 || math.IsNaN(def.Budget) || math.IsInf(def.Budget, 0) {
			return nil, fmt.Errorf("%w: route %s-%s has invalid tonnage budget %v", ErrConfiguration, solid, dest, def.Budget)
		}

		cycleHours := def.CycleMinutes / 60
		route := Route{
			Solid:       solid,
			Destination: dest,
			CycleHours:  cycleHours,
			Payload:     payload,
			Budget:      def.Budget,
			Yield:       payload / cycleHours,
		}

		id := route.ID()
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate route %s", ErrConfiguration, id)
		}
		c.index[id] = len(c.routes)
		c.routes = append(c.routes, route)
	}

	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on error. It is meant for
// compiled-in reference data.
func MustNewCatalog(defs []Definition, payloads map[string]float64) *Catalog {
	c, err := NewCatalog(defs, payloads)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of routes.
func (c *Catalog) Len() int {
	return len(c.routes)
}

// At returns the route at position i in catalog order.
func (c *Catalog) At(i int) Route {
	return c.routes[i]
}

// Routes returns a copy of the routes in catalog order.
func (c *Catalog) Routes() []Route {
	out := make([]Route, len(c.routes))
	copy(out, c.routes)
	return out
}

// Lookup finds a route by its ID.
func (c *Catalog) Lookup(id string) (Route, bool) {
	i, ok := c.index[id]
	if !ok {
		return Route{}, false
	}
	return c.routes[i], true
}

// EffectiveYield returns the tons moved per truck-hour on the route.
func (c *Catalog) EffectiveYield(id string) (float64, bool) {
	r, ok := c.Lookup(id)
	if !ok {
		return 0, false
	}
	return r.Yield, true
}

// Yields returns a fresh map of route ID to effective yield.
func (c *Catalog) Yields() map[string]float64 {
	out := make(map[string]float64, len(c.routes))
	for _, r := range c.routes {
		out[r.ID()] = r.Yield
	}
	return out
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
