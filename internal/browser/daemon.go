package browser

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/neboloop/chatdriver/internal/logging"
)

// DaemonOptions configures a Daemon.
type DaemonOptions struct {
	Endpoint     string
	Spec         LaunchSpec
	Process      ProcessControl
	Prober       Prober
	Descriptors  *DescriptorStore
	PollInterval time.Duration
	Timeout      time.Duration
	Grace        time.Duration
	Logger       *slog.Logger
}

// Daemon guarantees that a browser is serving CDP on a fixed local endpoint.
type Daemon struct {
	endpoint    string
	spec        LaunchSpec
	proc        ProcessControl
	prober      Prober
	descriptors *DescriptorStore
	poll        time.Duration
	timeout     time.Duration
	grace       time.Duration
	logger      *slog.Logger
}

// Status is a snapshot of the daemon as seen from this process.
type Status struct {
	Endpoint     string `json:"endpoint"`
	Reachable    bool   `json:"reachable"`
	PID          int    `json:"pid,omitempty"`
	PIDAlive     bool   `json:"pid_alive"`
	WebSocketURL string `json:"web_socket_url,omitempty"`
	Descriptor   bool   `json:"descriptor"`
}

// NewDaemon creates a launcher. Zero-valued options take the package defaults.
func NewDaemon(opts DaemonOptions) *Daemon {
	d := &Daemon{
		endpoint:    opts.Endpoint,
		spec:        opts.Spec,
		proc:        opts.Process,
		prober:      opts.Prober,
		descriptors: opts.Descriptors,
		poll:        opts.PollInterval,
		timeout:     opts.Timeout,
		grace:       opts.Grace,
		logger:      opts.Logger,
	}
	if d.endpoint == "" {
		d.endpoint = EndpointForPort(opts.Spec.CDPPort)
	}
	if d.proc == nil {
		d.proc = ExecProcessControl{}
	}
	if d.prober == nil {
		d.prober = HTTPProber{Timeout: DefaultProbeTimeout}
	}
	if d.poll <= 0 {
		d.poll = DefaultLaunchPollInterval
	}
	if d.timeout <= 0 {
		d.timeout = DefaultLaunchTimeout
	}
	if d.grace <= 0 {
		d.grace = DefaultTerminateGrace
	}
	d.logger = logging.Component(d.logger, "daemon")
	return d
}

// Endpoint returns the control endpoint this daemon serves.
func (d *Daemon) Endpoint() string {
	return d.endpoint
}

// Ensure makes sure the endpoint is reachable, spawning a detached browser if needed.
// Calling it while a daemon is already reachable never spawns a second one.
func (d *Daemon) Ensure(ctx context.Context) error {
	if d.prober.Reachable(ctx, d.endpoint) {
		d.recordExisting()
		return nil
	}

	d.logger.Info("starting browser daemon", "endpoint", d.endpoint)
	pid, err := d.proc.Start(d.spec)
	if err != nil {
		return &LaunchError{Kind: ErrSpawnFailed, Endpoint: d.endpoint, Err: err}
	}

	deadline := time.NewTimer(d.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.abandon(pid)
			return &LaunchError{Kind: ErrLaunchTimeout, Endpoint: d.endpoint, Err: ctx.Err()}
		case <-deadline.C:
			d.abandon(pid)
			return &LaunchError{Kind: ErrLaunchTimeout, Endpoint: d.endpoint}
		case <-ticker.C:
			if !d.prober.Reachable(ctx, d.endpoint) {
				continue
			}
			d.logger.Info("browser daemon ready", "endpoint", d.endpoint, "pid", pid)
			if d.descriptors != nil {
				if err := d.descriptors.Save(Descriptor{Endpoint: d.endpoint, PID: pid}); err != nil {
					d.logger.Warn("failed to write session descriptor", "error", err)
				}
			}
			return nil
		}
	}
}

// recordExisting writes a descriptor for a daemon found already running, keeping a known pid.
func (d *Daemon) recordExisting() {
	if d.descriptors == nil {
		return
	}
	cur, err := d.descriptors.Load()
	if err != nil {
		d.logger.Warn("ignoring unreadable session descriptor", "error", err)
	}
	if cur != nil && cur.Endpoint == d.endpoint {
		return
	}
	if err := d.descriptors.Save(Descriptor{Endpoint: d.endpoint}); err != nil {
		d.logger.Warn("failed to write session descriptor", "error", err)
	}
}

func (d *Daemon) abandon(pid int) {
	d.logger.Warn("browser daemon did not come up, terminating", "pid", pid, "timeout", d.timeout)
	if err := d.proc.Terminate(pid, d.grace); err != nil {
		d.logger.Warn("failed to terminate browser daemon", "pid", pid, "error", err)
	}
}

// Stop terminates the recorded daemon process and deletes the descriptor.
// A missing descriptor or pid is not an error. The descriptor is deleted even if
// terminating the process fails; both errors are returned.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.descriptors == nil {
		return nil
	}
	desc, err := d.descriptors.Load()
	if err != nil {
		d.logger.Warn("unreadable session descriptor, removing", "error", err)
	}
	var termErr error
	if desc != nil && desc.PID > 0 && d.proc.Alive(desc.PID) {
		d.logger.Info("stopping browser daemon", "pid", desc.PID)
		if termErr = d.proc.Terminate(desc.PID, d.grace); termErr != nil {
			d.logger.Warn("failed to terminate browser daemon", "pid", desc.PID, "error", termErr)
		}
	}
	// The descriptor goes even when the process could not be stopped.
	return errors.Join(termErr, d.descriptors.Delete())
}

// Status reports reachability and the recorded process.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{Endpoint: d.endpoint}
	if d.descriptors != nil {
		if desc, err := d.descriptors.Load(); err == nil && desc != nil {
			st.Descriptor = true
			st.Endpoint = desc.Endpoint
			st.PID = desc.PID
			st.PIDAlive = desc.PID > 0 && d.proc.Alive(desc.PID)
		}
	}
	st.Reachable = d.prober.Reachable(ctx, st.Endpoint)
	if st.Reachable {
		if ws, err := WebSocketURL(ctx, st.Endpoint, DefaultProbeTimeout); err == nil {
			st.WebSocketURL = ws
		}
	}
	return st
}
