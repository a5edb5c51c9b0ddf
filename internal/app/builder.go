package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"reelsmith/internal/asset"
	"reelsmith/internal/credits"
	"reelsmith/internal/ffmpeg"
	"reelsmith/internal/imagegen"
	"reelsmith/internal/llm"
	"reelsmith/internal/media"
	"reelsmith/internal/storage"
	"reelsmith/internal/tts"
	"reelsmith/internal/video"
	"reelsmith/internal/vidu"
	"reelsmith/pkg/config"
	"reelsmith/pkg/prompts"
)

type BuildResult struct {
	Service  *Service
	Pipeline *Pipeline
	Runner   *ffmpeg.Runner
	GCS      *storage.GCSStorage
}

func (r *BuildResult) Close() error {
	if r.GCS != nil {
		return r.GCS.Close()
	}
	return nil
}

// BuildService wires every collaborator from configuration. Optional
// collaborators whose credentials are absent are left nil and reported as
// not configured when a request needs them.
func BuildService(ctx context.Context, cfg *config.Config, verbose bool) (*BuildResult, error) {
	p, err := prompts.LoadFrom(cfg.LLM.PromptsPath)
	if err != nil {
		return nil, err
	}

	resolver, err := asset.NewResolver(asset.ResolverOptions{
		PublicRoot:    cfg.Storage.PublicRoot,
		AllowExternal: cfg.Storage.AllowExternal,
	})
	if err != nil {
		return nil, err
	}

	localStorage := storage.NewLocalStorage(resolver, cfg.Music.Dir)
	if err := localStorage.EnsureDirectories(); err != nil {
		return nil, err
	}

	runner := ffmpeg.NewRunner(ffmpeg.Options{
		FFmpegPath:  cfg.Video.FFmpegPath,
		FFprobePath: cfg.Video.FFprobePath,
		Verbose:     verbose,
	})
	if !runner.Available() {
		slog.Warn("ffmpeg not available, rendering will fail", "ffmpeg", cfg.Video.FFmpegPath)
	}

	result := &BuildResult{Runner: runner}

	var objects storage.ObjectStore
	if cfg.GCS.Enabled && cfg.GCS.Bucket != "" {
		gcs, err := storage.NewGCSStorage(ctx, storage.GCSOptions{
			Bucket:          cfg.GCS.Bucket,
			CredentialsFile: cfg.GCSCredentialsFile,
			MusicPrefix:     cfg.GCS.MusicPrefix,
			PublishPrefix:   cfg.GCS.PublishPrefix,
		})
		if err != nil {
			return nil, err
		}
		result.GCS = gcs
		objects = gcs
	}

	images := media.NewImageNormalizer()
	fetcher, err := media.NewFetcher(media.FetcherOptions{
		HTTPClient: &http.Client{Timeout: cfg.Media.Timeout},
		BaseURL:    cfg.Media.BaseURL,
		Objects:    objects,
		MaxBytes:   cfg.Media.MaxBytes,
		Images:     images,
		Audio:      media.NewAudioNormalizer(runner),
	})
	if err != nil {
		return nil, errors.Join(err, result.Close())
	}

	var writer llm.Client
	if cfg.GroqAPIKey != "" {
		groqClient, err := llm.NewGroqClient(cfg.GroqAPIKey, cfg.LLM.Model, p)
		if err != nil {
			return nil, errors.Join(err, result.Close())
		}
		writer = groqClient
	}

	var illustrator imagegen.Generator
	if cfg.GeminiAPIKey != "" || cfg.GCPProject != "" {
		gemini, err := imagegen.NewClient(ctx, imagegen.Options{
			APIKey:     cfg.GeminiAPIKey,
			Project:    cfg.GCPProject,
			Location:   cfg.ImageGen.Location,
			Model:      cfg.ImageGen.Model,
			Style:      cfg.ImageGen.Style,
			DailyLimit: cfg.ImageGen.DailyLimit,
			UsageFile:  cfg.ImageGen.UsageFile,
		}, p)
		if err != nil {
			return nil, errors.Join(err, result.Close())
		}
		illustrator = gemini
	}

	narrator := tts.NewGradioClient(tts.Options{
		ServerURL: cfg.TTS.ServerURL,
		Function:  cfg.TTS.Function,
		Voice:     cfg.TTS.Voice,
		Language:  cfg.TTS.Language,
		Token:     cfg.TTSToken,
	})

	var animator ClipAnimator
	if cfg.ViduAPIKey != "" {
		client := vidu.NewClient(cfg.ViduAPIKey, vidu.Options{
			BaseURL:           cfg.Vidu.BaseURL,
			Model:             cfg.Vidu.Model,
			RequestsPerSecond: cfg.Vidu.RequestsPerSecond,
			Burst:             cfg.Vidu.Burst,
		})
		poller := vidu.NewPoller(client, vidu.PollerOptions{
			Interval:    cfg.Vidu.PollInterval,
			MaxAttempts: cfg.Vidu.MaxAttempts,
		})
		animator = vidu.NewOrchestrator(client, poller)
	}

	synthesizer := video.NewSynthesizer(runner, video.SynthesizerOptions{
		Preset:          cfg.Video.Preset,
		DefaultDuration: cfg.Video.SegmentDuration,
	})
	concatenator := video.NewConcatenator(runner, resolver, video.ConcatenatorOptions{
		Preset:         cfg.Video.Preset,
		MusicVolume:    cfg.Music.Volume,
		DriftTolerance: cfg.Video.DriftTolerance,
	})

	var gate credits.Gate = credits.Unlimited{}
	budget, err := credits.NewBudgetFromConfig(cfg.Credits.Limits)
	if err != nil {
		return nil, errors.Join(err, result.Close())
	}
	if budget != nil {
		slog.Info("Credit limits enabled", "limits", cfg.Credits.Limits)
		gate = budget
	}

	service := NewService(ServiceOptions{
		Config:      cfg,
		Prompts:     p,
		Storage:     localStorage,
		Objects:     objects,
		Fetcher:     fetcher,
		Images:      images,
		Writer:      writer,
		Illustrator: illustrator,
		Narrator:    narrator,
		Synthesizer: synthesizer,
		Animator:    animator,
		Merger:      video.NewMerger(runner),
		Concat:      concatenator,
		Gate:        gate,
	})

	result.Service = service
	result.Pipeline = NewPipeline(service)
	return result, nil
}
