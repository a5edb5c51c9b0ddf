package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"golang.org/x/sync/errgroup"

	"reelsmith/internal/asset"
	"reelsmith/internal/credits"
	"reelsmith/internal/llm"
	"reelsmith/internal/platform"
	"reelsmith/internal/script"
	"reelsmith/internal/storage"
	"reelsmith/internal/tts"
	"reelsmith/internal/video"
	"reelsmith/internal/vidu"
	"reelsmith/pkg/prompts"
)

const defaultParallelism = 4

var (
	ErrMusicRequired = errors.New("music selection is required (use \"none\" for no music)")
	ErrNotConfigured = errors.New("collaborator not configured")
	ErrNoUser        = errors.New("user id is required")
)

type Pipeline struct {
	service     *Service
	parallelism int
}

// SegmentOutcome reports one segment of a fan-out. Ref is the asset the
// step produced, zero when it failed or had nothing to do.
type SegmentOutcome struct {
	Index int
	Ref   asset.Locator
	Err   error
}

type BatchResult struct {
	Script   script.Script
	Outcomes []SegmentOutcome
}

func (b *BatchResult) Failed() []SegmentOutcome {
	var failed []SegmentOutcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err joins every per-segment failure, or nil when all segments succeeded.
func (b *BatchResult) Err() error {
	var errs []error
	for _, o := range b.Failed() {
		errs = append(errs, &script.SegmentError{Index: o.Index, Err: o.Err})
	}
	return errors.Join(errs...)
}

type ConcatInput struct {
	UserID      string
	Script      script.Script
	Music       string
	MusicVolume float64
}

type ProduceRequest struct {
	UserID      string
	Brief       llm.Brief
	Motion      bool
	Music       string
	MusicVolume float64
}

type ProduceResult struct {
	Script script.Script
	Video  *video.FinalVideo
}

func NewPipeline(service *Service) *Pipeline {
	parallelism := service.Config().Pipeline.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Pipeline{service: service, parallelism: parallelism}
}

func (pipeline *Pipeline) GenerateScript(ctx context.Context, brief llm.Brief) (script.Script, error) {
	if pipeline.service.writer == nil {
		return script.Script{}, fmt.Errorf("%w: script writer", ErrNotConfigured)
	}
	slog.Info("Generating storyboard", "topic", brief.Topic, "segments", brief.Segments)
	return pipeline.service.writer.GenerateScript(ctx, brief)
}

// PrepareAssets gives every segment a local image and voice track. Missing
// images are generated from the description, missing voices from the script
// text, and remote references are fetched and normalized.
func (pipeline *Pipeline) PrepareAssets(ctx context.Context, userID string, s script.Script) (*BatchResult, error) {
	if err := pipeline.precheck(userID, s); err != nil {
		return nil, err
	}

	dims := s.Platform.Dimensions()
	updated := make([]script.Segment, s.Len())
	copy(updated, s.Segments)

	slog.Info("Preparing segment assets", "segments", s.Len(), "user", userID)
	outcomes := pipeline.fanOut(ctx, s.Len(), func(ctx context.Context, i int) SegmentOutcome {
		seg := updated[i]

		image, imgErr := pipeline.prepareImage(ctx, userID, seg, s.Platform, dims)
		if imgErr == nil && !image.IsZero() {
			seg = seg.WithImage(image)
		}
		voice, voiceErr := pipeline.prepareVoice(ctx, userID, seg)
		if voiceErr == nil && !voice.IsZero() {
			seg = seg.WithVoice(voice)
		}

		updated[i] = seg
		return SegmentOutcome{Index: i, Err: errors.Join(imgErr, voiceErr)}
	})

	return pipeline.apply(s, updated, outcomes)
}

func (pipeline *Pipeline) prepareImage(ctx context.Context, userID string, seg script.Segment, p platform.Platform, dims platform.Dimensions) (asset.Locator, error) {
	svc := pipeline.service
	switch {
	case seg.ImageRef.Kind == asset.KindRemote:
		loc, _, err := pipeline.fetchRemote(ctx, userID, seg.ImageRef, asset.TypeImages, dims)
		return loc, err
	case seg.HasImage():
		return asset.Locator{}, nil
	case svc.illustrator == nil || svc.images == nil:
		return asset.Locator{}, fmt.Errorf("%w: image generator", ErrNotConfigured)
	}

	var loc asset.Locator
	err := credits.Guard(ctx, svc.gate, userID, credits.OpImage, func() error {
		img, err := svc.illustrator.Generate(ctx, seg.ImageDescription, p)
		if err != nil {
			return err
		}
		ref, dst, err := svc.storage.Reserve(userID, asset.TypeImages, storage.UniqueName("image", ".png"))
		if err != nil {
			return err
		}
		if err := svc.images.NormalizeBytes(img.Data, dst, dims.Width, dims.Height); err != nil {
			return err
		}
		loc = ref
		return nil
	})
	return loc, err
}

func (pipeline *Pipeline) prepareVoice(ctx context.Context, userID string, seg script.Segment) (asset.Locator, error) {
	svc := pipeline.service
	switch {
	case seg.VoiceRef.Kind == asset.KindRemote:
		loc, _, err := pipeline.fetchRemote(ctx, userID, seg.VoiceRef, asset.TypeAudio, platform.Dimensions{})
		return loc, err
	case seg.HasVoice():
		return asset.Locator{}, nil
	case svc.narrator == nil:
		return asset.Locator{}, fmt.Errorf("%w: voice synthesizer", ErrNotConfigured)
	}

	var loc asset.Locator
	err := credits.Guard(ctx, svc.gate, userID, credits.OpVoice, func() error {
		audioURL, err := svc.narrator.Synthesize(ctx, tts.Request{Text: seg.Script})
		if err != nil {
			return err
		}
		ref, _, err := pipeline.fetchRemote(ctx, userID, asset.Remote(audioURL), asset.TypeAudio, platform.Dimensions{})
		if err != nil {
			return err
		}
		loc = ref
		return nil
	})
	return loc, err
}

// fetchRemote downloads and normalizes a remote asset into the user's
// directory: images to exact frame size PNG, audio to AAC.
func (pipeline *Pipeline) fetchRemote(ctx context.Context, userID string, ref asset.Locator, assetType string, dims platform.Dimensions) (asset.Locator, string, error) {
	svc := pipeline.service
	if svc.fetcher == nil {
		return asset.Locator{}, "", fmt.Errorf("%w: media fetcher", ErrNotConfigured)
	}

	switch assetType {
	case asset.TypeImages:
		loc, dst, err := svc.storage.Reserve(userID, assetType, storage.UniqueName("image", ".png"))
		if err != nil {
			return asset.Locator{}, "", err
		}
		if err := svc.fetcher.FetchImage(ctx, ref.URL, dst, dims.Width, dims.Height); err != nil {
			return asset.Locator{}, "", err
		}
		return loc, dst, nil
	default:
		loc, dst, err := svc.storage.Reserve(userID, assetType, storage.UniqueName("voice", ".m4a"))
		if err != nil {
			return asset.Locator{}, "", err
		}
		if err := svc.fetcher.FetchAudio(ctx, ref.URL, dst); err != nil {
			return asset.Locator{}, "", err
		}
		return loc, dst, nil
	}
}

// localize returns a path on disk for ref, fetching remote references first.
func (pipeline *Pipeline) localize(ctx context.Context, userID string, ref asset.Locator, assetType string, index int, dims platform.Dimensions) (asset.Locator, string, error) {
	if ref.Kind == asset.KindRemote {
		return pipeline.fetchRemote(ctx, userID, ref, assetType, dims)
	}
	p, err := pipeline.service.Resolver().ResolveExisting(ref, index)
	if err != nil {
		return asset.Locator{}, "", err
	}
	return ref, p, nil
}

// RenderBasicSegments turns each segment's still image and voice into a clip.
func (pipeline *Pipeline) RenderBasicSegments(ctx context.Context, userID string, s script.Script) (*BatchResult, error) {
	if err := pipeline.precheck(userID, s); err != nil {
		return nil, err
	}
	svc := pipeline.service
	if svc.synthesizer == nil {
		return nil, fmt.Errorf("%w: segment synthesizer", ErrNotConfigured)
	}

	sess, err := newSession(svc.Resolver(), userID)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	dims := s.Platform.Dimensions()
	updated := make([]script.Segment, s.Len())
	copy(updated, s.Segments)

	slog.Info("Rendering segments", "mode", "basic", "segments", s.Len(), "user", userID)
	outcomes := pipeline.fanOut(ctx, s.Len(), func(ctx context.Context, i int) SegmentOutcome {
		seg := updated[i]
		if err := script.ReadyForBasic(seg); err != nil {
			return SegmentOutcome{Index: i, Err: err}
		}

		imgRef, imgPath, err := pipeline.localize(ctx, userID, seg.ImageRef, asset.TypeImages, i, dims)
		if err != nil {
			return SegmentOutcome{Index: i, Err: err}
		}
		voiceRef, voicePath, err := pipeline.localize(ctx, userID, seg.VoiceRef, asset.TypeAudio, i, dims)
		if err != nil {
			return SegmentOutcome{Index: i, Err: err}
		}
		seg = seg.WithImage(imgRef).WithVoice(voiceRef)

		var clip asset.Locator
		err = credits.Guard(ctx, svc.gate, userID, credits.OpSegmentBasic, func() error {
			res, err := svc.synthesizer.Synthesize(ctx, video.SynthesizeRequest{
				ImagePath: imgPath,
				AudioPath: voicePath,
				Width:     dims.Width,
				Height:    dims.Height,
				Index:     i,
				OutputDir: sess.dir,
			})
			if err != nil {
				return err
			}
			clip, err = sess.keep(res.Path, i)
			return err
		})
		if err != nil {
			return SegmentOutcome{Index: i, Err: err}
		}

		updated[i] = seg.WithVideo(clip)
		return SegmentOutcome{Index: i, Ref: clip}
	})

	return pipeline.apply(s, updated, outcomes)
}

// RenderViduSegments animates each segment's image with the external video
// service and lays the segment's voice over the result when it has one.
func (pipeline *Pipeline) RenderViduSegments(ctx context.Context, userID string, s script.Script) (*BatchResult, error) {
	if err := pipeline.precheck(userID, s); err != nil {
		return nil, err
	}
	svc := pipeline.service
	if svc.animator == nil || svc.merger == nil {
		return nil, fmt.Errorf("%w: vidu client", ErrNotConfigured)
	}

	sess, err := newSession(svc.Resolver(), userID)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	dims := s.Platform.Dimensions()
	resolution := vidu.ResolutionFor(dims)
	updated := make([]script.Segment, s.Len())
	copy(updated, s.Segments)

	slog.Info("Rendering segments", "mode", "vidu", "segments", s.Len(), "resolution", resolution, "user", userID)
	outcomes := pipeline.fanOut(ctx, s.Len(), func(ctx context.Context, i int) SegmentOutcome {
		seg := updated[i]
		if err := script.ReadyForVidu(seg); err != nil {
			return SegmentOutcome{Index: i, Err: err}
		}

		imgRef, imgPath, err := pipeline.localize(ctx, userID, seg.ImageRef, asset.TypeImages, i, dims)
		if err != nil {
			return SegmentOutcome{Index: i, Err: err}
		}
		seg = seg.WithImage(imgRef)

		var voicePath string
		if seg.HasVoice() {
			var voiceRef asset.Locator
			voiceRef, voicePath, err = pipeline.localize(ctx, userID, seg.VoiceRef, asset.TypeAudio, i, dims)
			if err != nil {
				return SegmentOutcome{Index: i, Err: err}
			}
			seg = seg.WithVoice(voiceRef)
		}

		prompt, err := svc.prompts.RenderMotion(prompts.MotionParams{
			Description: seg.ImageDescription,
			Script:      seg.Script,
		})
		if err != nil {
			return SegmentOutcome{Index: i, Err: fmt.Errorf("render motion prompt: %w", err)}
		}

		var clip asset.Locator
		err = credits.Guard(ctx, svc.gate, userID, credits.OpSegmentVidu, func() error {
			res, err := svc.animator.Run(ctx, vidu.Job{
				ImagePath:  imgPath,
				Prompt:     prompt,
				Duration:   vidu.DefaultDuration,
				Resolution: resolution,
			})
			if err != nil {
				return err
			}

			raw := sess.path(fmt.Sprintf("vidu_%d.mp4", i))
			if err := svc.animator.Download(ctx, res.VideoURL, raw); err != nil {
				return fmt.Errorf("download clip: %w", err)
			}

			// The service's own audio is never kept; voiceless clips get silence.
			out, err := svc.merger.Merge(ctx, video.MergeRequest{
				VideoPath:  raw,
				AudioPath:  voicePath,
				OutputPath: sess.path(video.SegmentFileName(i)),
			})
			if err != nil {
				return err
			}
			_ = os.Remove(raw)

			clip, err = sess.keep(out, i)
			return err
		})
		if err != nil {
			return SegmentOutcome{Index: i, Err: err}
		}

		updated[i] = seg.WithVideo(clip)
		return SegmentOutcome{Index: i, Ref: clip}
	})

	return pipeline.apply(s, updated, outcomes)
}

// Concat joins every segment clip into the final video. It is all-or-nothing
// and runs only once every segment has a clip.
func (pipeline *Pipeline) Concat(ctx context.Context, in ConcatInput) (*video.FinalVideo, error) {
	if in.Script.Len() == 0 {
		return nil, script.ErrNoSegments
	}
	if in.UserID == "" {
		return nil, ErrNoUser
	}
	if err := script.ReadyForConcat(in.Script); err != nil {
		return nil, err
	}
	svc := pipeline.service
	if svc.concat == nil {
		return nil, fmt.Errorf("%w: concatenator", ErrNotConfigured)
	}
	if svc.storage == nil {
		return nil, fmt.Errorf("%w: storage", ErrNotConfigured)
	}
	if err := pipeline.checkOwnership(in.UserID, in.Script); err != nil {
		return nil, err
	}

	music, err := pipeline.musicFor(ctx, in.Music)
	if err != nil {
		return nil, err
	}

	volume := in.MusicVolume
	if volume <= 0 {
		volume = svc.cfg.Music.Volume
	}

	var final *video.FinalVideo
	err = credits.Guard(ctx, svc.gate, in.UserID, credits.OpFinalVideo, func() error {
		loc, dst, err := svc.storage.Reserve(in.UserID, asset.TypeVideos, storage.UniqueName("final", ".mp4"))
		if err != nil {
			return err
		}

		final, err = svc.concat.Concatenate(ctx, video.ConcatRequest{
			Inputs:      in.Script.VideoRefs(),
			Music:       music,
			MusicVolume: volume,
			Platform:    in.Script.Platform,
			OutputPath:  dst,
		})
		if err != nil {
			return err
		}
		final.URL = loc.String()
		pipeline.publish(ctx, in.UserID, loc, final)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if svc.cfg.Pipeline.PurgeSegmentClips {
		pipeline.purge(in.UserID, in.Script)
	}

	slog.Info("Final video ready",
		"user", in.UserID,
		"path", final.Path,
		"duration", final.DurationSeconds,
		"drift", final.Diagnostics.Drift,
	)
	return final, nil
}

// Produce runs the whole flow from a topic brief to the final video.
func (pipeline *Pipeline) Produce(ctx context.Context, req ProduceRequest) (*ProduceResult, error) {
	s, err := pipeline.GenerateScript(ctx, req.Brief)
	if err != nil {
		return nil, err
	}

	prepared, err := pipeline.PrepareAssets(ctx, req.UserID, s)
	if err != nil {
		return nil, err
	}
	if err := prepared.Err(); err != nil {
		return &ProduceResult{Script: prepared.Script}, err
	}

	render := pipeline.RenderBasicSegments
	if req.Motion {
		render = pipeline.RenderViduSegments
	}
	rendered, err := render(ctx, req.UserID, prepared.Script)
	if err != nil {
		return &ProduceResult{Script: prepared.Script}, err
	}
	if err := rendered.Err(); err != nil {
		return &ProduceResult{Script: rendered.Script}, err
	}

	final, err := pipeline.Concat(ctx, ConcatInput{
		UserID:      req.UserID,
		Script:      rendered.Script,
		Music:       req.Music,
		MusicVolume: req.MusicVolume,
	})
	if err != nil {
		return &ProduceResult{Script: rendered.Script}, err
	}
	return &ProduceResult{Script: rendered.Script, Video: final}, nil
}

func (pipeline *Pipeline) musicFor(ctx context.Context, name string) (asset.Locator, error) {
	switch {
	case name == "":
		return asset.Locator{}, ErrMusicRequired
	case storage.IsNoMusic(name):
		return asset.Locator{}, nil
	case pipeline.service.music == nil:
		return asset.Locator{}, fmt.Errorf("%w: music library", ErrNotConfigured)
	}

	track, err := pipeline.service.music.Track(ctx, name)
	if err != nil {
		return asset.Locator{}, err
	}
	return asset.LocalPath(track.Path), nil
}

// publish mirrors the final video to object storage. Failure keeps the local
// URL; the video itself is already complete.
func (pipeline *Pipeline) publish(ctx context.Context, userID string, loc asset.Locator, final *video.FinalVideo) {
	svc := pipeline.service
	if svc.objects == nil || !svc.cfg.GCS.Enabled {
		return
	}
	object := path.Join(svc.cfg.GCS.PublishPrefix, userID, loc.Filename)
	url, err := svc.objects.Publish(ctx, final.Path, object)
	if err != nil {
		slog.Warn("Failed to publish final video", "object", object, "error", err)
		return
	}
	final.URL = url
}

// checkOwnership rejects clips that live in another user's part of the
// public root. Files outside the root are the caller's own and pass through.
func (pipeline *Pipeline) checkOwnership(userID string, s script.Script) error {
	resolver := pipeline.service.Resolver()
	for i, ref := range s.VideoRefs() {
		owned, err := resolver.OwnedBy(ref, userID, asset.TypeVideos)
		if err != nil {
			return &script.SegmentError{Index: i, Err: err}
		}
		if owned {
			continue
		}
		public, err := resolver.Public(ref)
		if err != nil {
			return &script.SegmentError{Index: i, Err: err}
		}
		if public {
			return &script.SegmentError{
				Index: i,
				Err:   fmt.Errorf("%w: clip %s is not in %s's videos", asset.ErrInvalid, ref.String(), userID),
			}
		}
	}
	return nil
}

// purge removes the user's own segment clips. Anything else is left alone.
func (pipeline *Pipeline) purge(userID string, s script.Script) {
	resolver := pipeline.service.Resolver()
	for _, ref := range s.VideoRefs() {
		owned, err := resolver.OwnedBy(ref, userID, asset.TypeVideos)
		if err != nil || !owned {
			slog.Debug("Keeping segment clip", "ref", ref.String(), "user", userID)
			continue
		}
		if err := pipeline.service.storage.Remove(ref); err != nil {
			slog.Warn("Failed to remove segment clip", "ref", ref.String(), "error", err)
		}
	}
}

func (pipeline *Pipeline) precheck(userID string, s script.Script) error {
	if userID == "" {
		return ErrNoUser
	}
	if pipeline.service.storage == nil {
		return fmt.Errorf("%w: storage", ErrNotConfigured)
	}
	return s.Validate()
}

// fanOut runs fn for every index with bounded concurrency and waits for all
// of them. Failures are returned per index and never cancel siblings.
func (pipeline *Pipeline) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) SegmentOutcome) []SegmentOutcome {
	outcomes := make([]SegmentOutcome, n)

	var g errgroup.Group
	g.SetLimit(pipeline.parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			outcomes[i] = fn(ctx, i)
			if err := outcomes[i].Err; err != nil {
				slog.Warn("Segment failed", "segment", i+1, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// apply folds the per-segment results back into s one replacement at a time.
func (pipeline *Pipeline) apply(s script.Script, updated []script.Segment, outcomes []SegmentOutcome) (*BatchResult, error) {
	out := s
	for i, seg := range updated {
		next, err := out.WithSegment(i, seg)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return &BatchResult{Script: out, Outcomes: outcomes}, nil
}
