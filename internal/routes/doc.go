// Package routes holds the static extraction-to-destination reference data used
// by the optimizer: cycle times, truck payloads, tonnage budgets and the
// effective yield derived from them. A Catalog is validated once at
// construction and is read-only afterwards, so it can be shared across
// concurrent runs.
package routes
