package video

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/asset"
	"reelsmith/internal/ffmpeg"
	"reelsmith/internal/platform"
)

const (
	DefaultMusicVolume    = 0.2
	DefaultDriftTolerance = 1.0
)

// Concatenator joins segment clips in order and optionally lays a looped
// music bed under the narration. Nothing is written at OutputPath unless
// every stage succeeds.
type Concatenator struct {
	runner         *ffmpeg.Runner
	resolver       *asset.Resolver
	preset         string
	musicVolume    float64
	driftTolerance float64
}

type ConcatenatorOptions struct {
	Preset         string
	MusicVolume    float64
	DriftTolerance float64
}

type ConcatRequest struct {
	Inputs []asset.Locator
	// Music is a zero Locator for no score. Absolute local paths are taken
	// as-is since tracks come from the server's library, not from users.
	Music       asset.Locator
	MusicVolume float64
	Platform    platform.Platform
	OutputPath  string
}

func NewConcatenator(runner *ffmpeg.Runner, resolver *asset.Resolver, opts ConcatenatorOptions) *Concatenator {
	c := &Concatenator{
		runner:         runner,
		resolver:       resolver,
		preset:         opts.Preset,
		musicVolume:    opts.MusicVolume,
		driftTolerance: opts.DriftTolerance,
	}
	if c.preset == "" {
		c.preset = defaultPreset
	}
	if c.musicVolume <= 0 || c.musicVolume > 1 {
		c.musicVolume = DefaultMusicVolume
	}
	if c.driftTolerance <= 0 {
		c.driftTolerance = DefaultDriftTolerance
	}
	return c
}

func (c *Concatenator) Concatenate(ctx context.Context, req ConcatRequest) (*FinalVideo, error) {
	if len(req.Inputs) == 0 {
		return nil, ErrNoSegments
	}
	if req.OutputPath == "" {
		return nil, fmt.Errorf("concatenate: output path is required")
	}

	paths := make([]string, len(req.Inputs))
	for i, loc := range req.Inputs {
		p, err := c.resolver.ResolveExisting(loc, i)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}

	var musicPath string
	if !req.Music.IsZero() {
		p, err := c.resolveMusic(req.Music)
		if err != nil {
			return nil, err
		}
		musicPath = p
	}

	diag := Diagnostics{InputDurations: make([]float64, len(paths))}
	for i, p := range paths {
		d, err := c.runner.Probe(ctx, p)
		if err != nil {
			return nil, &InputError{Path: p, Err: fmt.Errorf("%w: %v", ErrUnreadableInput, err)}
		}
		diag.InputDurations[i] = d
		diag.ExpectedTotal += d
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	manifest, err := writeManifest(filepath.Dir(req.OutputPath), paths)
	if err != nil {
		return nil, err
	}
	defer removeAll(manifest)

	slog.Info("Concatenating clips", "count", len(paths), "platform", req.Platform, "expected", diag.ExpectedTotal)

	joined := scratchPath(req.OutputPath, "joined")
	if err := c.runner.Run(ctx, concatArgs(manifest, c.preset, joined)...); err != nil {
		removeAll(joined)
		return nil, fmt.Errorf("concatenate clips: %w", err)
	}

	final := joined
	if musicPath != "" {
		volume := req.MusicVolume
		if volume <= 0 || volume > 1 {
			volume = c.musicVolume
		}
		mixed, loops, err := c.mix(ctx, joined, musicPath, volume, req.OutputPath)
		if err != nil {
			removeAll(joined)
			return nil, err
		}
		removeAll(joined)
		final = mixed
		diag.MusicLoops = loops
	}

	measured, err := c.runner.Probe(ctx, final)
	if err != nil {
		removeAll(final)
		return nil, fmt.Errorf("probe final video: %w", err)
	}
	diag.MeasuredDuration = measured
	diag.Drift = measured - diag.ExpectedTotal
	if math.Abs(diag.Drift) > c.driftTolerance {
		diag.DriftWarning = true
		slog.Warn("Final video duration drifted from segment total",
			"expected", diag.ExpectedTotal,
			"measured", measured,
			"drift", diag.Drift,
		)
	}

	if err := promote(final, req.OutputPath); err != nil {
		return nil, err
	}

	return &FinalVideo{
		Path:            req.OutputPath,
		DurationSeconds: measured,
		Diagnostics:     diag,
	}, nil
}

// mix lays the music under the joined video and returns the mixed scratch
// file with the loop count used.
func (c *Concatenator) mix(ctx context.Context, videoPath, musicPath string, volume float64, target string) (string, int, error) {
	videoDur, err := c.runner.Probe(ctx, videoPath)
	if err != nil {
		return "", 0, fmt.Errorf("probe joined video: %w", err)
	}
	musicDur, err := c.runner.Probe(ctx, musicPath)
	if err != nil {
		return "", 0, &InputError{Path: musicPath, Err: fmt.Errorf("%w: %v", ErrUnreadableInput, err)}
	}
	if musicDur <= 0 {
		return "", 0, &InputError{Path: musicPath, Err: fmt.Errorf("%w: zero length", ErrUnreadableInput)}
	}
	narrated, err := c.runner.HasStream(ctx, videoPath, "a")
	if err != nil {
		return "", 0, fmt.Errorf("inspect joined video: %w", err)
	}

	loops := MusicLoops(videoDur, musicDur)
	mixed := scratchPath(target, "mixed")

	slog.Debug("Mixing background music", "music", filepath.Base(musicPath), "loops", loops, "volume", volume)

	if err := c.runner.Run(ctx, mixArgs(videoPath, musicPath, loops, volume, videoDur, narrated, mixed)...); err != nil {
		removeAll(mixed)
		return "", 0, fmt.Errorf("mix background music: %w", err)
	}
	return mixed, loops, nil
}

func (c *Concatenator) resolveMusic(loc asset.Locator) (string, error) {
	if loc.Kind == asset.KindLocalPath && filepath.IsAbs(loc.Path) {
		info, err := os.Stat(loc.Path)
		if err != nil || info.IsDir() {
			return "", &asset.NotFoundError{Path: loc.Path, Index: -1}
		}
		return loc.Path, nil
	}
	return c.resolver.ResolveExisting(loc, -1)
}

// MusicLoops is how many times a track of musicDur must play to cover
// videoDur.
func MusicLoops(videoDur, musicDur float64) int {
	if musicDur <= 0 || musicDur >= videoDur {
		return 1
	}
	return int(math.Ceil(videoDur / musicDur))
}

// Manifest renders a concat demuxer list. Paths are slash-normalized and
// single quotes are escaped the way the demuxer expects.
func Manifest(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		p = filepath.ToSlash(p)
		p = strings.ReplaceAll(p, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", p)
	}
	return b.String()
}

func writeManifest(dir string, paths []string) (string, error) {
	f, err := os.CreateTemp(dir, ".concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	if _, err := f.WriteString(Manifest(paths)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write concat list: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return f.Name(), nil
}

func concatArgs(manifest, preset, output string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c:v", "libx264",
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-ar", audioRate,
		"-movflags", "+faststart",
		output,
	}
}

func mixFilter(volume float64, narrated bool) string {
	if !narrated {
		return fmt.Sprintf("[1:a]volume=%.2f[a]", volume)
	}
	return fmt.Sprintf(
		"[0:a]volume=1.0[a0];[1:a]volume=%.2f[a1];[a0][a1]amix=inputs=2:duration=first:normalize=0[a]",
		volume,
	)
}

func mixArgs(videoPath, musicPath string, loops int, volume, videoDur float64, narrated bool, output string) []string {
	args := []string{"-i", videoPath}
	if loops > 1 {
		args = append(args, "-stream_loop", fmt.Sprint(loops-1))
	}
	return append(args,
		"-i", musicPath,
		"-filter_complex", mixFilter(volume, narrated),
		"-map", "0:v",
		"-map", "[a]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-ar", audioRate,
		"-t", formatSeconds(videoDur),
		"-shortest",
		"-movflags", "+faststart",
		output,
	)
}
