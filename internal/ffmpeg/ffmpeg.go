package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

const (
	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"

	stderrTailLines = 12
)

// ProcessError reports a non-zero exit from ffmpeg or ffprobe.
type ProcessError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Tail())
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Tail returns the last lines of stderr, which is where ffmpeg puts the reason.
func (e *ProcessError) Tail() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.Join(lines, "\n")
}

type Runner struct {
	ffmpegPath  string
	ffprobePath string
	verbose     bool
}

type Options struct {
	FFmpegPath  string
	FFprobePath string
	Verbose     bool
}

func NewRunner(opts Options) *Runner {
	ffmpegPath := opts.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpegPath
	}
	ffprobePath := opts.FFprobePath
	if ffprobePath == "" {
		ffprobePath = DefaultFFprobePath
	}
	return &Runner{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		verbose:     opts.Verbose,
	}
}

// Available reports whether both binaries can be found.
func (r *Runner) Available() bool {
	if _, err := exec.LookPath(r.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(r.ffprobePath)
	return err == nil
}

// Run executes ffmpeg with the given arguments. A banner-free, overwrite-enabled
// invocation is enforced so callers only pass the interesting flags.
func (r *Runner) Run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-y"}, args...)
	if !r.verbose {
		full = append([]string{"-loglevel", "error"}, full...)
	}

	slog.Debug("Running ffmpeg", "args", strings.Join(full, " "))
	_, err := r.exec(ctx, r.ffmpegPath, full)
	return err
}

// Probe returns the container duration of a media file in seconds.
func (r *Runner) Probe(ctx context.Context, path string) (float64, error) {
	out, err := r.exec(ctx, r.ffprobePath, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	})
	if err != nil {
		return 0, err
	}
	return ParseDuration(out)
}

// HasStream reports whether the file carries at least one stream of the given
// kind ("a" for audio, "v" for video).
func (r *Runner) HasStream(ctx context.Context, path, kind string) (bool, error) {
	out, err := r.exec(ctx, r.ffprobePath, []string{
		"-v", "error",
		"-select_streams", kind,
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (r *Runner) exec(ctx context.Context, tool string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &ProcessError{
			Tool:     tool,
			Args:     args,
			ExitCode: code,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return stdout.String(), nil
}

func ParseDuration(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("no duration reported")
	}
	dur, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", value, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative duration %v", dur)
	}
	return dur, nil
}
