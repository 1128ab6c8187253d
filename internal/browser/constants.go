// Package browser owns the long-lived browser daemon and the CDP connections to it:
// reachability probing, detached launch, descriptor persistence, attaching, and liveness.
package browser

import "time"

const (
	// DefaultCDPPort is the well-known remote debugging port of the browser daemon.
	DefaultCDPPort = 9222

	// DefaultEndpoint is the control endpoint persisted in the session descriptor.
	DefaultEndpoint = "ws://127.0.0.1:9222"

	// DefaultProbeTimeout bounds a single reachability probe.
	DefaultProbeTimeout = 2 * time.Second

	// DefaultLaunchTimeout bounds how long Ensure waits for a spawned daemon.
	DefaultLaunchTimeout = 30 * time.Second

	// DefaultLaunchPollInterval is how often Ensure re-probes a spawned daemon.
	DefaultLaunchPollInterval = time.Second

	// DefaultHealthTimeout bounds the liveness evaluation.
	DefaultHealthTimeout = 5 * time.Second

	// DefaultTerminateGrace is how long Stop waits after SIGTERM before SIGKILL.
	DefaultTerminateGrace = 5 * time.Second
)

// Driver names accepted by NewConnector.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)
