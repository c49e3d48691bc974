// Package application provides application initialization and dependency wiring.
// It encapsulates the creation of the route catalog, the optimizer selected by
// the solver mode, parameter and run stores, handlers, routers, and HTTP server
// instances, making the main package cleaner and more focused on CLI parsing
// and orchestration.
package application
