package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"storyboard-ai/internal/appdirs"
	"storyboard-ai/log"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	ConsistencyWarn = "warn"
	ConsistencyFail = "fail"

	QueueModeMemory = "memory"
	QueueModeRedis  = "redis"
)

type App struct {
	SaveDir           string  `toml:"save_dir"`
	MaxSegmentSeconds float64 `toml:"max_segment_seconds"`
	FrameRate         int     `toml:"frame_rate"`
	PromptWorkers     int     `toml:"prompt_workers"`
	StageRetries      int     `toml:"stage_retries"`
	ConsistencyPolicy string  `toml:"consistency_policy"`
	Proxy             string  `toml:"proxy"`
}

type Server struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type Llm struct {
	BaseUrl     string  `toml:"base_url"`
	ApiKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	MaxAttempts int     `toml:"max_attempts"`
}

type Generation struct {
	FigureServerUrl string `toml:"figure_server_url"`
	FigureApi       string `toml:"figure_api"`
	VideoServerUrl  string `toml:"video_server_url"`
	VideoApi        string `toml:"video_api"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

type AutoDL struct {
	Enabled             bool   `toml:"enabled"`
	BaseUrl             string `toml:"base_url"`
	Token               string `toml:"token"`
	InstanceId          string `toml:"instance_id"`
	StartupWaitSeconds  int    `toml:"startup_wait_seconds"`
	StopRetries         int    `toml:"stop_retries"`
	StopIntervalSeconds int    `toml:"stop_interval_seconds"`
}

type Transcribe struct {
	Enabled              bool   `toml:"enabled"`
	BuzzUrl              string `toml:"buzz_url"`
	MaxWaitSeconds       int    `toml:"max_wait_seconds"`
	CheckIntervalSeconds int    `toml:"check_interval_seconds"`
}

type Proofread struct {
	Enabled       bool    `toml:"enabled"`
	MinSimilarity float64 `toml:"min_similarity"`
}

type Queue struct {
	Mode          string `toml:"mode"`
	QueueSize     int    `toml:"queue_size"`
	Concurrency   int    `toml:"concurrency"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

type Publish struct {
	Enabled         bool   `toml:"enabled"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	AccessKeyId     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
}

type Paths struct {
	Ffmpeg  string `toml:"ffmpeg"`
	Ffprobe string `toml:"ffprobe"`
}

type Config struct {
	App        App        `toml:"app"`
	Server     Server     `toml:"server"`
	Llm        Llm        `toml:"llm"`
	Generation Generation `toml:"generation"`
	AutoDL     AutoDL     `toml:"autodl"`
	Transcribe Transcribe `toml:"transcribe"`
	Proofread  Proofread  `toml:"proofread"`
	Queue      Queue      `toml:"queue"`
	Publish    Publish    `toml:"publish"`
	Paths      Paths      `toml:"paths"`
}

var Conf = defaultConfig()

var resolveConfigPath = ResolveConfigPath

// envFile is loaded before overrides are applied. Missing is fine.
var envFile = ".env"

func defaultConfig() Config {
	return Config{
		App: App{
			MaxSegmentSeconds: 3,
			FrameRate:         16,
			PromptWorkers:     30,
			StageRetries:      1,
			ConsistencyPolicy: ConsistencyWarn,
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8888,
		},
		Llm: Llm{
			BaseUrl:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxTokens:   2048,
			MaxAttempts: 5,
		},
		Generation: Generation{
			FigureApi:      "/generate_image",
			VideoApi:       "/generate_video",
			TimeoutSeconds: 600,
		},
		AutoDL: AutoDL{
			BaseUrl:             "https://www.autodl.com/api/v1/dev",
			StartupWaitSeconds:  60,
			StopRetries:         5,
			StopIntervalSeconds: 15,
		},
		Transcribe: Transcribe{
			MaxWaitSeconds:       300,
			CheckIntervalSeconds: 2,
		},
		Proofread: Proofread{
			MinSimilarity: 0.5,
		},
		Queue: Queue{
			Mode:        QueueModeMemory,
			QueueSize:   16,
			Concurrency: 1,
			RedisAddr:   "localhost:6379",
		},
		Publish: Publish{
			Prefix: "storyboard",
		},
	}
}

func ResolveConfigPath() (string, error) {
	dirs, err := appdirs.Resolve()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dirs.ConfigFile) == "" {
		return filepath.Join("config", "config.toml"), nil
	}
	return dirs.ConfigFile, nil
}

// LoadOrCreateConfig decodes the config file into Conf, writing the
// defaults first when the file does not exist yet.
func LoadOrCreateConfig() (bool, error) {
	configPath, err := resolveConfigPath()
	if err != nil {
		return false, err
	}

	created := false
	if _, err = os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		Conf = defaultConfig()
		if err = SaveConfig(); err != nil {
			return false, err
		}
		created = true
		log.GetLogger().Info("未找到配置文件，已生成默认配置 Default config created", zap.String("path", configPath))
	} else if err != nil {
		return false, err
	} else {
		loaded := defaultConfig()
		if _, err = toml.DecodeFile(configPath, &loaded); err != nil {
			return false, fmt.Errorf("decode config %s: %w", configPath, err)
		}
		Conf = loaded
		log.GetLogger().Info("已加载配置文件 Config loaded", zap.String("path", configPath))
	}

	applyEnvOverrides(&Conf)
	return created, nil
}

// LoadConfig is the startup entry used by the binaries.
func LoadConfig() bool {
	if _, err := LoadOrCreateConfig(); err != nil {
		log.GetLogger().Error("加载配置失败 Load config failed", zap.Error(err))
		return false
	}
	return true
}

func SaveConfig() error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = toml.NewEncoder(&buf).Encode(Conf); err != nil {
		return err
	}
	return os.WriteFile(configPath, buf.Bytes(), 0o644)
}

func applyEnvOverrides(c *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.GetLogger().Warn("读取 .env 失败 Load .env failed", zap.Error(err))
	}

	overrides := map[string]*string{
		"STORYBOARD_LLM_API_KEY":           &c.Llm.ApiKey,
		"STORYBOARD_AUTODL_TOKEN":          &c.AutoDL.Token,
		"STORYBOARD_OSS_ACCESS_KEY_ID":     &c.Publish.AccessKeyId,
		"STORYBOARD_OSS_ACCESS_KEY_SECRET": &c.Publish.AccessKeySecret,
	}
	for key, target := range overrides {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}
}

// CheckConfig validates values the pipeline cannot run without and fills
// derived defaults.
func CheckConfig() error {
	if Conf.App.MaxSegmentSeconds <= 0 {
		return errors.New("app.max_segment_seconds must be positive")
	}
	if Conf.App.FrameRate <= 0 {
		return errors.New("app.frame_rate must be positive")
	}
	if Conf.App.PromptWorkers <= 0 {
		Conf.App.PromptWorkers = 1
	}
	if Conf.App.StageRetries < 0 {
		Conf.App.StageRetries = 0
	}
	switch Conf.App.ConsistencyPolicy {
	case "":
		Conf.App.ConsistencyPolicy = ConsistencyWarn
	case ConsistencyWarn, ConsistencyFail:
	default:
		return fmt.Errorf("app.consistency_policy must be %q or %q, got %q", ConsistencyWarn, ConsistencyFail, Conf.App.ConsistencyPolicy)
	}
	if strings.TrimSpace(Conf.App.SaveDir) == "" {
		saveRoot, err := appdirs.ResolveSaveRoot()
		if err != nil {
			return err
		}
		Conf.App.SaveDir = saveRoot
	}

	if Conf.AutoDL.Enabled && (Conf.AutoDL.Token == "" || Conf.AutoDL.InstanceId == "") {
		return errors.New("autodl.token and autodl.instance_id are required when autodl is enabled")
	}
	if Conf.Transcribe.Enabled && Conf.Transcribe.BuzzUrl == "" {
		return errors.New("transcribe.buzz_url is required when transcription is enabled")
	}
	if Conf.Publish.Enabled && (Conf.Publish.Bucket == "" || Conf.Publish.Region == "") {
		return errors.New("publish.bucket and publish.region are required when publishing is enabled")
	}
	switch Conf.Queue.Mode {
	case "":
		Conf.Queue.Mode = QueueModeMemory
	case QueueModeMemory, QueueModeRedis:
	default:
		return fmt.Errorf("queue.mode must be %q or %q", QueueModeMemory, QueueModeRedis)
	}
	return nil
}

const redactedValue = "******"

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

// Redacted returns a copy of c with every secret masked, for display.
func (c Config) Redacted() Config {
	c.Llm.ApiKey = redact(c.Llm.ApiKey)
	c.AutoDL.Token = redact(c.AutoDL.Token)
	c.Queue.RedisPassword = redact(c.Queue.RedisPassword)
	c.Publish.AccessKeyId = redact(c.Publish.AccessKeyId)
	c.Publish.AccessKeySecret = redact(c.Publish.AccessKeySecret)
	return c
}
