package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "config.yaml"

	defaultAddr             = ":8080"
	defaultReadTimeout      = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Minute
	defaultPublicRoot       = "./public"
	defaultMediaMaxBytes    = 100 << 20
	defaultMediaTimeout     = 60 * time.Second
	defaultFFmpegPath       = "ffmpeg"
	defaultFFprobePath      = "ffprobe"
	defaultPreset           = "fast"
	defaultSegmentDuration  = 5.0
	defaultDriftTolerance   = 1.0
	defaultMusicDir         = "./assets/music"
	defaultMusicVolume      = 0.2
	defaultViduBaseURL      = "https://api.vidu.com"
	defaultViduModel        = "vidu2.0"
	defaultViduPollInterval = 5 * time.Second
	defaultViduMaxAttempts  = 60
	defaultViduRPS          = 2.0
	defaultViduBurst        = 4
	defaultTTSServerURL     = "http://localhost:7860"
	defaultTTSFunction      = "predict"
	defaultLanguage         = "en"
	defaultLLMModel         = "llama-3.3-70b-versatile"
	defaultImageModel       = "gemini-2.5-flash-image"
	defaultImageLocation    = "us-central1"
	defaultGCSMusicPrefix   = "music"
	defaultGCSPublishPrefix = "videos"
	defaultParallelism      = 4
	defaultLogFormat        = "text"
	defaultPromptsPath      = "prompts.yaml"
)

var ErrConfigNotFound = errors.New("config file not found")

type Config struct {
	ViduAPIKey         string
	GroqAPIKey         string
	GeminiAPIKey       string
	TTSToken           string
	GCPProject         string
	GCSCredentialsFile string

	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Media    MediaConfig    `yaml:"media"`
	Video    VideoConfig    `yaml:"video"`
	Music    MusicConfig    `yaml:"music"`
	Vidu     ViduConfig     `yaml:"vidu"`
	TTS      TTSConfig      `yaml:"tts"`
	LLM      LLMConfig      `yaml:"llm"`
	ImageGen ImageGenConfig `yaml:"imagegen"`
	GCS      GCSConfig      `yaml:"gcs"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Credits  CreditsConfig  `yaml:"credits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	PublicRoot    string `yaml:"public_root"`
	AllowExternal bool   `yaml:"allow_external"`
}

type MediaConfig struct {
	BaseURL  string        `yaml:"base_url"`
	MaxBytes int64         `yaml:"max_bytes"`
	Timeout  time.Duration `yaml:"timeout"`
}

type VideoConfig struct {
	FFmpegPath      string  `yaml:"ffmpeg_path"`
	FFprobePath     string  `yaml:"ffprobe_path"`
	Preset          string  `yaml:"preset"`
	SegmentDuration float64 `yaml:"segment_duration"`
	DriftTolerance  float64 `yaml:"drift_tolerance"`
}

type MusicConfig struct {
	Dir    string  `yaml:"dir"`
	Volume float64 `yaml:"volume"`
}

type ViduConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type TTSConfig struct {
	ServerURL string `yaml:"server_url"`
	Function  string `yaml:"function"`
	Voice     string `yaml:"voice"`
	Language  string `yaml:"language"`
}

type LLMConfig struct {
	Model       string `yaml:"model"`
	PromptsPath string `yaml:"prompts_path"`
}

type ImageGenConfig struct {
	Model      string `yaml:"model"`
	Style      string `yaml:"style"`
	Location   string `yaml:"location"`
	DailyLimit int    `yaml:"daily_limit"`
	UsageFile  string `yaml:"usage_file"`
}

type GCSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Bucket        string `yaml:"bucket"`
	MusicPrefix   string `yaml:"music_prefix"`
	PublishPrefix string `yaml:"publish_prefix"`
}

type PipelineConfig struct {
	Parallelism       int  `yaml:"parallelism"`
	PurgeSegmentClips bool `yaml:"purge_segment_clips"`
}

// CreditsConfig caps billable operations per user for the life of the
// process. Operations not listed are unlimited; an empty map disables the cap.
type CreditsConfig struct {
	Limits map[string]int `yaml:"limits"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
}

func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, DefaultConfigPath)
}

// LoadFrom reads .env, then the YAML file at path, then fills defaults and
// resolves sm:// secret references.
func LoadFrom(ctx context.Context, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		ViduAPIKey:         os.Getenv("VIDU_API_KEY"),
		GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		TTSToken:           os.Getenv("TTS_TOKEN"),
		GCPProject:         os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GCSCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
	}

	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := resolveSecrets(ctx, cfg, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s (run `reelsmith setup`)", ErrConfigNotFound, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		cfg.GCS.Bucket = bucket
	}
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(cfg)
	applyStorageDefaults(cfg)
	applyMediaDefaults(cfg)
	applyVideoDefaults(cfg)
	applyMusicDefaults(cfg)
	applyViduDefaults(cfg)
	applyTTSDefaults(cfg)
	applyLLMDefaults(cfg)
	applyImageGenDefaults(cfg)
	applyGCSDefaults(cfg)
	applyPipelineDefaults(cfg)
	applyLoggingDefaults(cfg)
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
}

func applyStorageDefaults(cfg *Config) {
	if cfg.Storage.PublicRoot == "" {
		cfg.Storage.PublicRoot = defaultPublicRoot
	}
}

func applyMediaDefaults(cfg *Config) {
	if cfg.Media.MaxBytes == 0 {
		cfg.Media.MaxBytes = defaultMediaMaxBytes
	}
	if cfg.Media.Timeout == 0 {
		cfg.Media.Timeout = defaultMediaTimeout
	}
}

func applyVideoDefaults(cfg *Config) {
	if cfg.Video.FFmpegPath == "" {
		cfg.Video.FFmpegPath = defaultFFmpegPath
	}
	if cfg.Video.FFprobePath == "" {
		cfg.Video.FFprobePath = defaultFFprobePath
	}
	if cfg.Video.Preset == "" {
		cfg.Video.Preset = defaultPreset
	}
	if cfg.Video.SegmentDuration == 0 {
		cfg.Video.SegmentDuration = defaultSegmentDuration
	}
	if cfg.Video.DriftTolerance == 0 {
		cfg.Video.DriftTolerance = defaultDriftTolerance
	}
}

func applyMusicDefaults(cfg *Config) {
	if cfg.Music.Dir == "" {
		cfg.Music.Dir = defaultMusicDir
	}
	if cfg.Music.Volume == 0 {
		cfg.Music.Volume = defaultMusicVolume
	}
}

func applyViduDefaults(cfg *Config) {
	if cfg.Vidu.BaseURL == "" {
		cfg.Vidu.BaseURL = defaultViduBaseURL
	}
	if cfg.Vidu.Model == "" {
		cfg.Vidu.Model = defaultViduModel
	}
	if cfg.Vidu.PollInterval == 0 {
		cfg.Vidu.PollInterval = defaultViduPollInterval
	}
	if cfg.Vidu.MaxAttempts == 0 {
		cfg.Vidu.MaxAttempts = defaultViduMaxAttempts
	}
	if cfg.Vidu.RequestsPerSecond == 0 {
		cfg.Vidu.RequestsPerSecond = defaultViduRPS
	}
	if cfg.Vidu.Burst == 0 {
		cfg.Vidu.Burst = defaultViduBurst
	}
}

func applyTTSDefaults(cfg *Config) {
	if cfg.TTS.ServerURL == "" {
		cfg.TTS.ServerURL = defaultTTSServerURL
	}
	if cfg.TTS.Function == "" {
		cfg.TTS.Function = defaultTTSFunction
	}
	if cfg.TTS.Language == "" {
		cfg.TTS.Language = defaultLanguage
	}
}

func applyLLMDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultLLMModel
	}
	if cfg.LLM.PromptsPath == "" {
		cfg.LLM.PromptsPath = defaultPromptsPath
	}
}

func applyImageGenDefaults(cfg *Config) {
	if cfg.ImageGen.Model == "" {
		cfg.ImageGen.Model = defaultImageModel
	}
	if cfg.ImageGen.Location == "" {
		cfg.ImageGen.Location = defaultImageLocation
	}
}

func applyGCSDefaults(cfg *Config) {
	if cfg.GCS.MusicPrefix == "" {
		cfg.GCS.MusicPrefix = defaultGCSMusicPrefix
	}
	if cfg.GCS.PublishPrefix == "" {
		cfg.GCS.PublishPrefix = defaultGCSPublishPrefix
	}
}

func applyPipelineDefaults(cfg *Config) {
	if cfg.Pipeline.Parallelism <= 0 {
		cfg.Pipeline.Parallelism = defaultParallelism
	}
}

func applyLoggingDefaults(cfg *Config) {
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
}
