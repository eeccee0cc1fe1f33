package overflow

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Usage describes filesystem capacity in bytes.
type Usage struct {
	Total uint64
	Free  uint64
}

// FreeRatio returns Free/Total, or 1 for an unknown capacity.
func (u Usage) FreeRatio() float64 {
	if u.Total == 0 {
		return 1
	}
	return float64(u.Free) / float64(u.Total)
}

// UsageFunc reports capacity for the filesystem holding dir.
type UsageFunc func(dir string) (Usage, error)

// StatfsUsage reads capacity with statfs(2). Free counts blocks available to
// unprivileged users, so root-reserved blocks are treated as used.
func StatfsUsage(dir string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", dir, err)
	}
	bsize := uint64(st.Bsize)
	return Usage{
		Total: st.Blocks * bsize,
		Free:  st.Bavail * bsize,
	}, nil
}
