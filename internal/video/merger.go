package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"reelsmith/internal/ffmpeg"
)

// Merger replaces a clip's soundtrack with a separately produced voice track.
// The video stream is copied untouched. Without a voice track the clip gets a
// silent one, so every clip carries exactly one AAC stream.
type Merger struct {
	runner *ffmpeg.Runner
}

type MergeRequest struct {
	VideoPath  string
	// AudioPath may be empty; the output then carries silence.
	AudioPath  string
	OutputPath string
}

func NewMerger(runner *ffmpeg.Runner) *Merger {
	return &Merger{runner: runner}
}

func (m *Merger) Merge(ctx context.Context, req MergeRequest) (string, error) {
	if err := m.requireStream(ctx, req.VideoPath, "v"); err != nil {
		return "", err
	}
	if req.AudioPath != "" {
		if err := m.requireStream(ctx, req.AudioPath, "a"); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	tmp := scratchPath(req.OutputPath, "merge")

	if err := m.runner.Run(ctx, mergeArgs(req, tmp)...); err != nil {
		removeAll(tmp)
		return "", fmt.Errorf("merge voice into %s: %w", filepath.Base(req.VideoPath), err)
	}
	if err := promote(tmp, req.OutputPath); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

func (m *Merger) requireStream(ctx context.Context, path, kind string) error {
	if _, err := os.Stat(path); err != nil {
		return &InputError{Path: path, Err: err}
	}
	ok, err := m.runner.HasStream(ctx, path, kind)
	if err != nil {
		return &InputError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnreadableInput, err)}
	}
	if !ok {
		return &InputError{Path: path, Err: fmt.Errorf("%w: no %s stream", ErrUnreadableInput, streamName(kind))}
	}
	return nil
}

func mergeArgs(req MergeRequest, output string) []string {
	args := []string{"-i", req.VideoPath}
	if req.AudioPath != "" {
		args = append(args, "-i", req.AudioPath)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate="+audioRate)
	}
	return append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-ar", audioRate,
		"-ac", "2",
		"-shortest",
		"-movflags", "+faststart",
		output,
	)
}

func streamName(kind string) string {
	if kind == "a" {
		return "audio"
	}
	return "video"
}
