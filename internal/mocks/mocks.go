// Package mocks provides mock implementations of core interfaces for testing.
// Methods that produce files also accept a function as the first return
// value; it is called with the method arguments so a test can create the
// file it is asked for.
package mocks

import (
	"context"
	"storyboard-ai/internal/types"

	"github.com/stretchr/testify/mock"
)

// MockPromptGenerator is a mock implementation of types.PromptGenerator
type MockPromptGenerator struct {
	mock.Mock
}

func (m *MockPromptGenerator) GeneratePrompt(ctx context.Context, summary string, shot types.Shot) (types.Shot, error) {
	args := m.Called(ctx, summary, shot)
	return args.Get(0).(types.Shot), args.Error(1)
}

// MockFigureGenerator is a mock implementation of types.FigureGenerator
type MockFigureGenerator struct {
	mock.Mock
}

func (m *MockFigureGenerator) GenerateFigure(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	if fn, ok := args.Get(0).(func(string) (string, error)); ok {
		return fn(prompt)
	}
	return args.String(0), args.Error(1)
}

// MockVideoGenerator is a mock implementation of types.VideoGenerator
type MockVideoGenerator struct {
	mock.Mock
}

func (m *MockVideoGenerator) GenerateVideo(ctx context.Context, imagePath, prompt string, frameCount int) (string, error) {
	args := m.Called(ctx, imagePath, prompt, frameCount)
	if fn, ok := args.Get(0).(func(string, string, int) (string, error)); ok {
		return fn(imagePath, prompt, frameCount)
	}
	return args.String(0), args.Error(1)
}

// MockFrameExtractor is a mock implementation of types.FrameExtractor
type MockFrameExtractor struct {
	mock.Mock
}

func (m *MockFrameExtractor) ExtractLastFrame(ctx context.Context, videoPath, outputPath string) (string, error) {
	args := m.Called(ctx, videoPath, outputPath)
	if fn, ok := args.Get(0).(func(string, string) (string, error)); ok {
		return fn(videoPath, outputPath)
	}
	return args.String(0), args.Error(1)
}

// MockInstanceManager is a mock implementation of types.InstanceManager
type MockInstanceManager struct {
	mock.Mock
}

func (m *MockInstanceManager) Start(ctx context.Context, instanceID string) (string, error) {
	args := m.Called(ctx, instanceID)
	return args.String(0), args.Error(1)
}

func (m *MockInstanceManager) Stop(ctx context.Context, instanceID string) (string, error) {
	args := m.Called(ctx, instanceID)
	return args.String(0), args.Error(1)
}

// MockTranscriber is a mock implementation of types.Transcriber
type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audioPath, outputDir string) (string, error) {
	args := m.Called(ctx, audioPath, outputDir)
	if fn, ok := args.Get(0).(func(string, string) (string, error)); ok {
		return fn(audioPath, outputDir)
	}
	return args.String(0), args.Error(1)
}

// MockChatCompleter is a mock implementation of types.ChatCompleter
type MockChatCompleter struct {
	mock.Mock
}

func (m *MockChatCompleter) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

// MockMediaTool is a mock implementation of types.MediaTool
type MockMediaTool struct {
	mock.Mock
}

func (m *MockMediaTool) ConcatVideos(ctx context.Context, inputs []string, output string) error {
	args := m.Called(ctx, inputs, output)
	if fn, ok := args.Get(0).(func([]string, string) error); ok {
		return fn(inputs, output)
	}
	return args.Error(0)
}

func (m *MockMediaTool) ConcatAudio(ctx context.Context, inputs []string, output string) error {
	args := m.Called(ctx, inputs, output)
	if fn, ok := args.Get(0).(func([]string, string) error); ok {
		return fn(inputs, output)
	}
	return args.Error(0)
}

func (m *MockMediaTool) Retime(ctx context.Context, input, output string, targetSeconds float64) error {
	args := m.Called(ctx, input, output, targetSeconds)
	if fn, ok := args.Get(0).(func(string, string, float64) error); ok {
		return fn(input, output, targetSeconds)
	}
	return args.Error(0)
}

func (m *MockMediaTool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockMediaTool) Mux(ctx context.Context, videoPath, audioPath, subtitlePath, output string) error {
	args := m.Called(ctx, videoPath, audioPath, subtitlePath, output)
	if fn, ok := args.Get(0).(func(string, string, string, string) error); ok {
		return fn(videoPath, audioPath, subtitlePath, output)
	}
	return args.Error(0)
}

// MockPublisher is a mock implementation of types.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	args := m.Called(ctx, localPath, key)
	return args.String(0), args.Error(1)
}
