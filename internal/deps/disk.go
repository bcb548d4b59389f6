package deps

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// MinFreeBytes is the free space below which diagnose warns. Segment clips
// and their extracted frames add up quickly.
const MinFreeBytes = 5 << 30

type DiskState struct {
	Path        string
	Total       uint64
	Free        uint64
	UsedPercent float64
	Error       string
}

func (d DiskState) Low() bool {
	return d.Error == "" && d.Free < MinFreeBytes
}

var diskUsage = disk.Usage

// CheckDisk reports free space on the volume holding path.
func CheckDisk(path string) DiskState {
	state := DiskState{Path: path}
	usage, err := diskUsage(path)
	if err != nil {
		state.Error = err.Error()
		return state
	}
	state.Total = usage.Total
	state.Free = usage.Free
	state.UsedPercent = usage.UsedPercent
	return state
}

func FormatDiskReport(d DiskState) string {
	if d.Error != "" {
		return fmt.Sprintf("Disk %s: error: %s", d.Path, d.Error)
	}
	line := fmt.Sprintf("Disk %s: %.1f GiB free of %.1f GiB (%.0f%% used)",
		d.Path, float64(d.Free)/(1<<30), float64(d.Total)/(1<<30), d.UsedPercent)
	if d.Low() {
		line += "\n  warning: less than 5 GiB free"
	}
	return line
}
