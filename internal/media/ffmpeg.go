// Package media drives ffmpeg and ffprobe for the pipeline's encoding work.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"storyboard-ai/internal/storage"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Runner executes a binary and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Tool implements types.MediaTool and types.FrameExtractor on top of the
// ffmpeg binaries configured in storage.
type Tool struct {
	run Runner
}

func NewTool() *Tool {
	return &Tool{run: execRunner}
}

// NewToolWithRunner is used by tests to capture command lines.
func NewToolWithRunner(run Runner) *Tool {
	return &Tool{run: run}
}

func (t *Tool) ffmpeg(ctx context.Context, args ...string) error {
	output, err := t.run(ctx, storage.FfmpegPath, append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
	if err != nil {
		log.GetLogger().Error("ffmpeg 执行失败 ffmpeg failed", zap.Strings("args", args), zap.String("output", string(output)), zap.Error(err))
		return apperrors.WrapWithDetail(apperrors.CodeMediaToolFailed, "媒体处理失败 Media tool failed", lastLine(output), err)
	}
	return nil
}

func requireFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return apperrors.WrapWithDetail(apperrors.CodeFileNotFound, "文件不存在 File not found", p, err)
		}
	}
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer list next to output.
func writeConcatList(inputs []string, output string) (string, error) {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	list := output + ".concat.txt"
	if err := os.WriteFile(list, []byte(b.String()), 0o644); err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", list, err)
	}
	return list, nil
}

func (t *Tool) concat(ctx context.Context, inputs []string, output string, codecArgs ...string) error {
	if len(inputs) == 0 {
		return apperrors.New(apperrors.CodeInvalidParams, "没有可拼接的文件 Nothing to concatenate")
	}
	if err := requireFiles(inputs...); err != nil {
		return err
	}
	list, err := writeConcatList(inputs, output)
	if err != nil {
		return err
	}
	defer os.Remove(list)

	args := append([]string{"-f", "concat", "-safe", "0", "-i", list}, codecArgs...)
	return t.ffmpeg(ctx, append(args, output)...)
}

// ConcatVideos joins clips in order. Segments of one generator share a
// codec, so streams are copied.
func (t *Tool) ConcatVideos(ctx context.Context, inputs []string, output string) error {
	return t.concat(ctx, inputs, output, "-c", "copy")
}

// ConcatAudio joins narration clips into one PCM wav.
func (t *Tool) ConcatAudio(ctx context.Context, inputs []string, output string) error {
	return t.concat(ctx, inputs, output, "-c:a", "pcm_s16le")
}

// ProbeDuration returns the container duration in seconds.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if err := requireFiles(path); err != nil {
		return 0, err
	}
	output, err := t.run(ctx, storage.FfprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		log.GetLogger().Error("ffprobe 执行失败 ffprobe failed", zap.String("path", path), zap.String("output", string(output)), zap.Error(err))
		return 0, apperrors.WrapWithDetail(apperrors.CodeMediaToolFailed, "获取时长失败 Probe duration failed", path, err)
	}
	value := strings.TrimSpace(lastLine(output))
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, apperrors.WrapWithDetail(apperrors.CodeMediaToolFailed, "获取时长失败 Probe duration failed", value, err)
	}
	return seconds, nil
}

// Retime stretches or squeezes input so it plays for targetSeconds. Audio is
// dropped; narration is muxed separately.
func (t *Tool) Retime(ctx context.Context, input, output string, targetSeconds float64) error {
	if targetSeconds <= 0 {
		return apperrors.Newf(apperrors.CodeInvalidParams, "目标时长无效 Invalid target duration", "%v", targetSeconds)
	}
	current, err := t.ProbeDuration(ctx, input)
	if err != nil {
		return err
	}
	if current <= 0 {
		return apperrors.Newf(apperrors.CodeMediaToolFailed, "视频时长为零 Empty clip", "%s", input)
	}
	factor := targetSeconds / current
	return t.ffmpeg(ctx,
		"-i", input,
		"-filter:v", fmt.Sprintf("setpts=%.6f*PTS", factor),
		"-an",
		"-t", strconv.FormatFloat(targetSeconds, 'f', 3, 64),
		"-c:v", "libx264", "-preset", "fast", "-pix_fmt", "yuv420p",
		output)
}

// ExtractLastFrame writes the final frame of videoPath as an image.
func (t *Tool) ExtractLastFrame(ctx context.Context, videoPath, outputPath string) (string, error) {
	if err := requireFiles(videoPath); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "文件写入失败 File write failed", outputPath, err)
	}
	if err := t.ffmpeg(ctx, "-sseof", "-0.5", "-i", videoPath, "-update", "1", "-q:v", "1", outputPath); err != nil {
		return "", err
	}
	if err := requireFiles(outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Mux combines the final video, narration and subtitle track. Subtitles go
// in as a soft track.
func (t *Tool) Mux(ctx context.Context, videoPath, audioPath, subtitlePath, output string) error {
	inputs := []string{videoPath, audioPath}
	if subtitlePath != "" {
		inputs = append(inputs, subtitlePath)
	}
	if err := requireFiles(inputs...); err != nil {
		return err
	}

	args := []string{"-i", videoPath, "-i", audioPath}
	if subtitlePath != "" {
		args = append(args, "-i", subtitlePath)
	}
	args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	if subtitlePath != "" {
		args = append(args, "-map", "2:s:0", "-c:s", "mov_text", "-metadata:s:s:0", "language=chi")
	}
	args = append(args, "-c:v", "copy", "-c:a", "aac", "-b:a", "192k", output)
	return t.ffmpeg(ctx, args...)
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return lines[len(lines)-1]
}
