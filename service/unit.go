/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the long-living parts of the application (the limiter scheduler,
// the status HTTP server, the stats publishers) as units with a common start/stop lifecycle.
package service

// Unit is a component of a service with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return immediately or block for the lifetime of the unit.
	// A fatal error is reported by writing it into fatalErr. The channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus collectors.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
