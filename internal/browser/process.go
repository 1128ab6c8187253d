package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ProcessControl starts and stops the daemon process. The real implementation detaches
// the child into its own session so it outlives the manager.
type ProcessControl interface {
	Start(spec LaunchSpec) (pid int, err error)
	Terminate(pid int, grace time.Duration) error
	Alive(pid int) bool
}

// ExecProcessControl runs the browser binary with os/exec.
type ExecProcessControl struct{}

// Start launches the browser detached and returns its pid.
func (ExecProcessControl) Start(spec LaunchSpec) (int, error) {
	exe, err := FindChromeExecutable(spec.ExecutablePath)
	if err != nil {
		return 0, err
	}

	if spec.UserDataDir != "" {
		if err := os.MkdirAll(spec.UserDataDir, 0755); err != nil {
			return 0, fmt.Errorf("failed to create user data dir: %w", err)
		}
	}

	cmd := exec.Command(exe.Path, BuildArgs(spec)...)
	cmd.Env = os.Environ()
	detach(cmd)

	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
			return 0, err
		}
		f, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", exe.Path, err)
	}

	pid := cmd.Process.Pid
	// Reap in the background so an early exit does not leave a zombie that still looks alive.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// Terminate asks the process to exit and force-kills it after grace.
func (c ExecProcessControl) Terminate(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	if err := signalTerm(pid); err != nil {
		if !c.Alive(pid) {
			return nil
		}
		return err
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !c.Alive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return signalKill(pid)
}

// Alive reports whether pid refers to a running process.
func (ExecProcessControl) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return processAlive(pid)
}
