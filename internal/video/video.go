// Package video turns still images and voice tracks into segment clips and
// joins segment clips into the final, optionally scored, video.
package video

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"reelsmith/internal/script"
)

const (
	frameRate     = 30
	audioRate     = "44100"
	audioBitrate  = "192k"
	defaultPreset = "fast"
)

var (
	ErrNoSegments       = script.ErrNoSegments
	ErrUnreadableInput  = errors.New("input is not readable media")
	ErrInvalidDimension = errors.New("invalid frame dimensions")
)

// InputError names the file that made an operation fail.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

type Diagnostics struct {
	InputDurations   []float64
	ExpectedTotal    float64
	MeasuredDuration float64
	Drift            float64
	MusicLoops       int
	DriftWarning     bool
}

type FinalVideo struct {
	Path            string
	URL             string
	DurationSeconds float64
	Diagnostics     Diagnostics
}

// scratchPath returns a unique hidden file next to target. The extension is
// kept so ffmpeg can infer the container.
func scratchPath(target, tag string) string {
	ext := filepath.Ext(target)
	if ext == "" {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	return filepath.Join(filepath.Dir(target), fmt.Sprintf(".%s.%s.%s%s", base, tag, uuid.NewString()[:8], ext))
}

// promote moves a finished scratch file over its target.
func promote(tmp, target string) error {
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store %s: %w", filepath.Base(target), err)
	}
	return nil
}

func removeAll(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

func formatSeconds(d float64) string {
	return fmt.Sprintf("%.3f", d)
}
