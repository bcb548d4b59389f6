package types

import "context"

// PromptGenerator writes the figure and per-segment video prompts of a shot.
// The returned shot carries the generated fields; the caller decides which of
// them to merge.
type PromptGenerator interface {
	GeneratePrompt(ctx context.Context, summary string, shot Shot) (Shot, error)
}

// FigureGenerator renders a still image and returns its local path.
type FigureGenerator interface {
	GenerateFigure(ctx context.Context, prompt string) (string, error)
}

// VideoGenerator animates a seed image for frameCount frames and returns the
// local clip path.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, imagePath, prompt string, frameCount int) (string, error)
}

type FrameExtractor interface {
	ExtractLastFrame(ctx context.Context, videoPath, outputPath string) (string, error)
}

// InstanceStatusSuccess is the status an InstanceManager reports when the
// provider accepted the request.
const InstanceStatusSuccess = "Success"

// InstanceManager powers the rented GPU host on and off. Both calls return
// the provider status code.
type InstanceManager interface {
	Start(ctx context.Context, instanceID string) (string, error)
	Stop(ctx context.Context, instanceID string) (string, error)
}

// Transcriber turns a narration audio file into a subtitle file in outputDir.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, outputDir string) (string, error)
}

type ChatCompleter interface {
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// MediaTool performs the actual encoding work. Paths are explicit; the tool
// never decides names.
type MediaTool interface {
	ConcatVideos(ctx context.Context, inputs []string, output string) error
	ConcatAudio(ctx context.Context, inputs []string, output string) error
	Retime(ctx context.Context, input, output string, targetSeconds float64) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
	Mux(ctx context.Context, videoPath, audioPath, subtitlePath, output string) error
}

// Publisher uploads a finished artifact and returns its remote location.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) (string, error)
}
