package service

import (
	"storyboard-ai/config"
	"storyboard-ai/internal/media"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	"storyboard-ai/pkg/autodl"
	"storyboard-ai/pkg/buzz"
	"storyboard-ai/pkg/imagegen"
	"storyboard-ai/pkg/openai"
	"storyboard-ai/pkg/oss"
	"storyboard-ai/pkg/videogen"
	"time"

	"go.uber.org/zap"
)

// Settings are the knobs the stages read. They are copied from config.Conf
// once so a run never sees a config reload halfway.
type Settings struct {
	MaxSegmentSeconds float64
	FrameRate         int
	PromptWorkers     int
	StageRetries      int
	ConsistencyPolicy string

	LlmMaxAttempts int
	MinSimilarity  float64

	InstanceID   string
	StartupWait  time.Duration
	StopRetries  int
	StopInterval time.Duration

	PublishPrefix string
}

func SettingsFromConfig() Settings {
	c := config.Conf
	return Settings{
		MaxSegmentSeconds: c.App.MaxSegmentSeconds,
		FrameRate:         c.App.FrameRate,
		PromptWorkers:     c.App.PromptWorkers,
		StageRetries:      c.App.StageRetries,
		ConsistencyPolicy: c.App.ConsistencyPolicy,
		LlmMaxAttempts:    c.Llm.MaxAttempts,
		MinSimilarity:     c.Proofread.MinSimilarity,
		InstanceID:        c.AutoDL.InstanceId,
		StartupWait:       time.Duration(c.AutoDL.StartupWaitSeconds) * time.Second,
		StopRetries:       c.AutoDL.StopRetries,
		StopInterval:      time.Duration(c.AutoDL.StopIntervalSeconds) * time.Second,
		PublishPrefix:     c.Publish.Prefix,
	}
}

type Service struct {
	PromptGenerator types.PromptGenerator
	FigureGenerator types.FigureGenerator
	VideoGenerator  types.VideoGenerator
	FrameExtractor  types.FrameExtractor
	InstanceManager types.InstanceManager
	Transcriber     types.Transcriber
	ChatCompleter   types.ChatCompleter
	MediaTool       types.MediaTool
	Publisher       types.Publisher
	Settings        Settings
}

// NewService wires the HTTP and ffmpeg collaborators from config.Conf.
// Collaborators whose endpoint is not configured stay nil; a stage that
// needs one fails its shots instead of the whole process.
func NewService() *Service {
	settings := SettingsFromConfig()
	tool := media.NewTool()

	chatCompleter := openai.NewClient(config.Conf.Llm.BaseUrl, config.Conf.Llm.ApiKey, config.Conf.App.Proxy).
		WithModel(config.Conf.Llm.Model, config.Conf.Llm.Temperature, config.Conf.Llm.MaxTokens)

	svc := &Service{
		PromptGenerator: NewLLMPromptGenerator(chatCompleter, settings.MaxSegmentSeconds, settings.LlmMaxAttempts),
		FrameExtractor:  tool,
		ChatCompleter:   chatCompleter,
		MediaTool:       tool,
		Settings:        settings,
	}

	generatedDir, err := resolveCacheDirPath("generated")
	if err != nil {
		log.GetLogger().Error("解析缓存目录失败 Resolve cache dir failed", zap.Error(err))
		generatedDir = "generated"
	}
	timeout := time.Duration(config.Conf.Generation.TimeoutSeconds) * time.Second
	if url := config.Conf.Generation.FigureServerUrl; url != "" {
		svc.FigureGenerator = imagegen.NewClient(url, config.Conf.Generation.FigureApi, config.Conf.App.Proxy, generatedDir, timeout)
	}
	if url := config.Conf.Generation.VideoServerUrl; url != "" {
		svc.VideoGenerator = videogen.NewClient(url, config.Conf.Generation.VideoApi, config.Conf.App.Proxy, generatedDir, timeout)
	}
	if config.Conf.AutoDL.Enabled {
		svc.InstanceManager = autodl.NewClient(config.Conf.AutoDL.BaseUrl, config.Conf.AutoDL.Token)
	}
	if config.Conf.Transcribe.Enabled {
		svc.Transcriber = buzz.NewClient(config.Conf.Transcribe.BuzzUrl,
			time.Duration(config.Conf.Transcribe.MaxWaitSeconds)*time.Second,
			time.Duration(config.Conf.Transcribe.CheckIntervalSeconds)*time.Second)
	}
	if config.Conf.Publish.Enabled {
		p := config.Conf.Publish
		svc.Publisher = oss.NewPublisher(p.Region, p.Endpoint, p.Bucket, p.AccessKeyId, p.AccessKeySecret)
	}

	log.GetLogger().Info("服务已初始化 Service initialized",
		zap.Bool("figure", svc.FigureGenerator != nil),
		zap.Bool("video", svc.VideoGenerator != nil),
		zap.Bool("autodl", svc.InstanceManager != nil),
		zap.Bool("transcribe", svc.Transcriber != nil),
		zap.Bool("publish", svc.Publisher != nil))
	return svc
}
