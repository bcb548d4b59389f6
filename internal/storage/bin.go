package storage

import "strings"

// Binary locations used by the media tool. Bare names are looked up on PATH.
var (
	FfmpegPath  = "ffmpeg"
	FfprobePath = "ffprobe"
)

// SetBinaryPaths overrides the binary locations with configured values.
// Empty values keep the current setting.
func SetBinaryPaths(ffmpeg, ffprobe string) {
	if v := strings.TrimSpace(ffmpeg); v != "" {
		FfmpegPath = v
	}
	if v := strings.TrimSpace(ffprobe); v != "" {
		FfprobePath = v
	}
}
