package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"timelapse/internal/overflow"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace reports how much the overflow filesystem can absorb before
// eviction starts. Falling below the reserve is a warning: the store evicts
// oldest entries rather than failing.
func CheckFreeSpace(name, dir string, reserve float64) Result {
	usage, err := overflow.StatfsUsage(dir)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("statfs %s: %v", dir, err)}
	}
	free := humanize.Bytes(usage.Free)
	total := humanize.Bytes(usage.Total)
	if usage.FreeRatio() < reserve {
		return Result{Name: name, Optional: true,
			Detail: fmt.Sprintf("%s of %s free, below the %.0f%% reserve; oldest captures will be evicted", free, total, reserve*100)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s of %s free", free, total)}
}

// CheckCameraDevice verifies that a V4L2 device node exists. A numeric device
// is an index and is resolved to /dev/videoN. A missing camera is optional:
// the daemon keeps retrying and reconfigures on hotplug.
func CheckCameraDevice(device string) Result {
	const name = "Camera device"
	device = strings.TrimSpace(device)
	if device == "" {
		return Result{Name: name, Detail: "capture.device is empty"}
	}
	path := device
	if _, err := strconv.Atoi(device); err == nil {
		path = filepath.Join("/dev", "video"+device)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (not present: %v)", path, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a character device", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (insufficient permissions: %v; add the user to the video group)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckCollector probes the collector once with a short timeout. Failure is
// optional because captures are buffered until it comes back.
func CheckCollector(ctx context.Context, url string, prober Prober) Result {
	const name = "Collector"
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := prober.Probe(checkCtx); err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s unreachable (%s)", url, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", url)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
