// Package daemonctl controls a running timelapse daemon from another process.
//
// The daemon has no control socket: liveness comes from the instance lock and
// the pid file, and commands are delivered as signals.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"timelapse/internal/config"
	"timelapse/internal/daemon"
)

// ErrDaemonNotRunning indicates no process holds the instance lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ProcessInfo reports whether a daemon holds the instance lock and the pid it
// recorded, if any.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	locked, err := daemon.Locked(cfg)
	if err != nil {
		return false, 0, err
	}
	if !locked {
		return false, 0, nil
	}
	pid, err := readPID(cfg.PIDPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, 0, err
	}
	return true, pid, nil
}

// Reload asks the daemon to re-read its configuration file.
func Reload(cfg *config.Config) (int, error) {
	pid, err := runningPID(cfg)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
		return 0, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// StopAndTerminate sends SIGTERM and waits up to gracePeriod for the lock to be
// released. A daemon still holding it afterwards is killed.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pid, err := runningPID(cfg)
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if waitForUnlock(cfg, gracePeriod) {
		return result, nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", cfg.PIDPath(), err)
	}
	result.ForcedKill = true
	return result, nil
}

func waitForUnlock(cfg *config.Config, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		locked, err := daemon.Locked(cfg)
		if err == nil && !locked {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func runningPID(cfg *config.Config) (int, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return 0, err
	}
	if !running {
		return 0, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return 0, fmt.Errorf("daemon is running but %s has no pid", cfg.PIDPath())
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	return pid, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %q: %w", path, err)
	}
	return pid, nil
}
