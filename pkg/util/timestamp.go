package util

import (
	"fmt"
	"time"
)

// Timestamp formats t as YYYYMMDD_HHMMSS_fff, the naming used for generated
// artifacts and backups.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// SrtTimestamp formats d as HH:MM:SS,mmm. Negative values clamp to zero.
func SrtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
