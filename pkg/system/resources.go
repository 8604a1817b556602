package system

import (
	"fmt"
	"os"
	"path/filepath"
)

// MinWorkRootSpace is the free space a patch run wants below its work root.
// A decoded bundle is usually several times the size of the bundle itself.
const MinWorkRootSpace uint64 = 1 << 30

// DiskUsage represents disk usage information
type DiskUsage struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Free      uint64 `json:"free"`
	Available uint64 `json:"available"`
}

// UsedPct returns the used share of the disk in percent
func (d *DiskUsage) UsedPct() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used) / float64(d.Total) * 100
}

// WorkRootStatus is the result of CheckWorkRoot
type WorkRootStatus struct {
	Path     string     `json:"path"`
	Writable bool       `json:"writable"`
	Disk     *DiskUsage `json:"disk,omitempty"`
	LowSpace bool       `json:"low_space"`
	Error    string     `json:"error,omitempty"`
}

// CheckWorkRoot creates root when needed, proves it is writable and reports
// the space left on its filesystem. minFree of zero disables the space check.
func CheckWorkRoot(root string, minFree uint64) WorkRootStatus {
	status := WorkRootStatus{Path: root}

	abs, err := filepath.Abs(root)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Path = abs

	if err := os.MkdirAll(abs, 0755); err != nil {
		status.Error = err.Error()
		return status
	}
	probe := filepath.Join(abs, ".xapk-patcher-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		status.Error = err.Error()
		return status
	}
	_ = os.Remove(probe)
	status.Writable = true

	usage, err := getDiskUsage(abs)
	if err != nil {
		status.Error = fmt.Sprintf("disk usage unavailable: %v", err)
		return status
	}
	status.Disk = usage
	status.LowSpace = minFree > 0 && usage.Available < minFree
	return status
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
