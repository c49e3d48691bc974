package optimizer

import (
	"errors"

	"github.com/axion-mining/fleet-optimizer/internal/routes"
)

var (
	// ErrValidation is returned when Parameters fall outside their domain.
	ErrValidation = errors.New("invalid optimization parameters")
	// ErrConfiguration is returned when the route catalog or engine setup is inconsistent.
	ErrConfiguration = routes.ErrConfiguration
	// ErrDivisionByZero is returned when a day has no available truck-hours.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrComputation is returned for non-finite or out-of-bounds intermediate values.
	ErrComputation = errors.New("computation error")
)
