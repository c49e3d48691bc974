package routes

import "errors"

// ErrConfiguration is returned when the route reference data is inconsistent.
var ErrConfiguration = errors.New("invalid route catalog configuration")
