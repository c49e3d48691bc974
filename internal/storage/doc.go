// Package storage keeps the dashboard's current optimization parameters and
// the history of completed runs. Run history can live in memory, in Redis or
// in Postgres; all backends satisfy RunStore.
package storage
