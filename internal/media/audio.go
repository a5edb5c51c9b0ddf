package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/ffmpeg"
)

// AudioNormalizer transcodes voice tracks to AAC in an m4a container so every
// segment hands the muxer the same codec.
type AudioNormalizer struct {
	runner  *ffmpeg.Runner
	bitrate string
}

func NewAudioNormalizer(runner *ffmpeg.Runner) *AudioNormalizer {
	return &AudioNormalizer{runner: runner, bitrate: "192k"}
}

func (n *AudioNormalizer) Normalize(ctx context.Context, src, dst string) error {
	if strings.ToLower(filepath.Ext(dst)) != ".m4a" {
		return fmt.Errorf("normalized audio must be .m4a, got %s", filepath.Base(dst))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	tmp := strings.TrimSuffix(dst, ".m4a") + ".part.m4a"
	err := n.runner.Run(ctx,
		"-i", src,
		"-vn",
		"-c:a", "aac",
		"-b:a", n.bitrate,
		"-ar", "44100",
		tmp,
	)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("normalize audio: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store audio: %w", err)
	}
	return nil
}
