package video

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"reelsmith/internal/ffmpeg"
)

const DefaultSegmentDuration = 5.0

// Synthesizer renders one still image, optionally narrated, into a segment
// clip.
type Synthesizer struct {
	runner          *ffmpeg.Runner
	preset          string
	defaultDuration float64
}

type SynthesizerOptions struct {
	Preset string
	// DefaultDuration is used when no audio track is supplied.
	DefaultDuration float64
}

type SynthesizeRequest struct {
	ImagePath string
	AudioPath string
	Width     int
	Height    int
	Index     int
	OutputDir string
}

type SynthesizeResult struct {
	Path     string
	Duration float64
}

func NewSynthesizer(runner *ffmpeg.Runner, opts SynthesizerOptions) *Synthesizer {
	preset := opts.Preset
	if preset == "" {
		preset = defaultPreset
	}
	dur := opts.DefaultDuration
	if dur <= 0 {
		dur = DefaultSegmentDuration
	}
	return &Synthesizer{
		runner:          runner,
		preset:          preset,
		defaultDuration: dur,
	}
}

// SegmentFileName is the deterministic clip name for a segment index.
func SegmentFileName(index int) string {
	return "segment_" + strconv.Itoa(index) + ".mp4"
}

// Synthesize writes segment_<index>.mp4 into OutputDir, replacing any earlier
// render of the same index. Inputs are left in place.
func (s *Synthesizer) Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesizeResult, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, req.Width, req.Height)
	}
	if _, err := os.Stat(req.ImagePath); err != nil {
		return nil, &InputError{Path: req.ImagePath, Err: err}
	}

	duration := s.defaultDuration
	if req.AudioPath != "" {
		d, err := s.runner.Probe(ctx, req.AudioPath)
		if err != nil {
			return nil, &InputError{Path: req.AudioPath, Err: fmt.Errorf("%w: %v", ErrUnreadableInput, err)}
		}
		duration = d
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create segment directory: %w", err)
	}
	output := filepath.Join(req.OutputDir, SegmentFileName(req.Index))
	tmp := scratchPath(output, "render")

	slog.Debug("Synthesizing segment", "index", req.Index, "duration", duration, "audio", req.AudioPath != "")

	args := synthesizeArgs(req, duration, s.preset, tmp)
	if err := s.runner.Run(ctx, args...); err != nil {
		removeAll(tmp)
		return nil, fmt.Errorf("synthesize segment %d: %w", req.Index, err)
	}
	if err := promote(tmp, output); err != nil {
		return nil, err
	}

	return &SynthesizeResult{Path: output, Duration: duration}, nil
}

// synthesizeArgs loops the still at a fixed frame rate for exactly duration
// seconds. Without narration a silent track is muxed in so every clip carries
// audio for the concat stage.
func synthesizeArgs(req SynthesizeRequest, duration float64, preset, output string) []string {
	fit := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p",
		req.Width, req.Height, req.Width, req.Height,
	)

	args := []string{
		"-loop", "1",
		"-framerate", strconv.Itoa(frameRate),
		"-i", req.ImagePath,
	}
	if req.AudioPath != "" {
		args = append(args, "-i", req.AudioPath)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate="+audioRate)
	}

	return append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-t", formatSeconds(duration),
		"-vf", fit,
		"-r", strconv.Itoa(frameRate),
		"-c:v", "libx264",
		"-preset", preset,
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-ar", audioRate,
		"-ac", "2",
		"-shortest",
		"-movflags", "+faststart",
		output,
	)
}
