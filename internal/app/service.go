package app

import (
	"context"

	"reelsmith/internal/asset"
	"reelsmith/internal/credits"
	"reelsmith/internal/imagegen"
	"reelsmith/internal/llm"
	"reelsmith/internal/storage"
	"reelsmith/internal/tts"
	"reelsmith/internal/video"
	"reelsmith/internal/vidu"
	"reelsmith/pkg/config"
	"reelsmith/pkg/prompts"
)

type MediaFetcher interface {
	FetchImage(ctx context.Context, source, dst string, width, height int) error
	FetchAudio(ctx context.Context, source, dst string) error
}

type ImageWriter interface {
	NormalizeBytes(data []byte, dst string, width, height int) error
}

type SegmentSynthesizer interface {
	Synthesize(ctx context.Context, req video.SynthesizeRequest) (*video.SynthesizeResult, error)
}

type ClipAnimator interface {
	Run(ctx context.Context, job vidu.Job) (*vidu.Result, error)
	Download(ctx context.Context, url, dest string) error
}

type TrackMerger interface {
	Merge(ctx context.Context, req video.MergeRequest) (string, error)
}

type VideoConcatenator interface {
	Concatenate(ctx context.Context, req video.ConcatRequest) (*video.FinalVideo, error)
}

type Service struct {
	cfg         *config.Config
	prompts     *prompts.Prompts
	storage     *storage.LocalStorage
	music       storage.MusicLibrary
	objects     storage.ObjectStore
	fetcher     MediaFetcher
	images      ImageWriter
	writer      llm.Client
	illustrator imagegen.Generator
	narrator    tts.Synthesizer
	synthesizer SegmentSynthesizer
	animator    ClipAnimator
	merger      TrackMerger
	concat      VideoConcatenator
	gate        credits.Gate
}

type ServiceOptions struct {
	Config      *config.Config
	Prompts     *prompts.Prompts
	Storage     *storage.LocalStorage
	Music       storage.MusicLibrary
	Objects     storage.ObjectStore
	Fetcher     MediaFetcher
	Images      ImageWriter
	Writer      llm.Client
	Illustrator imagegen.Generator
	Narrator    tts.Synthesizer
	Synthesizer SegmentSynthesizer
	Animator    ClipAnimator
	Merger      TrackMerger
	Concat      VideoConcatenator
	Gate        credits.Gate
}

func NewService(opts ServiceOptions) *Service {
	s := &Service{
		cfg:         opts.Config,
		prompts:     opts.Prompts,
		storage:     opts.Storage,
		music:       opts.Music,
		objects:     opts.Objects,
		fetcher:     opts.Fetcher,
		images:      opts.Images,
		writer:      opts.Writer,
		illustrator: opts.Illustrator,
		narrator:    opts.Narrator,
		synthesizer: opts.Synthesizer,
		animator:    opts.Animator,
		merger:      opts.Merger,
		concat:      opts.Concat,
		gate:        opts.Gate,
	}
	if s.cfg == nil {
		s.cfg = &config.Config{}
	}
	if s.prompts == nil {
		s.prompts = prompts.Default()
	}
	if s.music == nil && s.storage != nil {
		s.music = s.storage
	}
	if s.gate == nil {
		s.gate = credits.Unlimited{}
	}
	return s
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) Storage() *storage.LocalStorage { return s.storage }

func (s *Service) Music() storage.MusicLibrary { return s.music }

func (s *Service) Objects() storage.ObjectStore { return s.objects }

func (s *Service) Writer() llm.Client { return s.writer }

func (s *Service) Resolver() *asset.Resolver {
	if s.storage == nil {
		return nil
	}
	return s.storage.Resolver()
}
