package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/asset"
	"reelsmith/internal/ffmpeg"
)

func TestManifest(t *testing.T) {
	got := Manifest([]string{"/data/a.mp4", "/data/it's.mp4"})
	want := "file '/data/a.mp4'\nfile '/data/it'\\''s.mp4'\n"
	if got != want {
		t.Errorf("Manifest() = %q, want %q", got, want)
	}
}

func TestMusicLoops(t *testing.T) {
	tests := []struct {
		name  string
		video float64
		music float64
		want  int
	}{
		{name: "musicLonger", video: 10, music: 30, want: 1},
		{name: "equal", video: 10, music: 10, want: 1},
		{name: "exactMultiple", video: 30, music: 10, want: 3},
		{name: "roundsUp", video: 31, music: 10, want: 4},
		{name: "zeroMusic", video: 10, music: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MusicLoops(tt.video, tt.music); got != tt.want {
				t.Errorf("MusicLoops(%v, %v) = %d, want %d", tt.video, tt.music, got, tt.want)
			}
		})
	}
}

func TestMixArgs(t *testing.T) {
	tests := []struct {
		name            string
		loops           int
		narrated        bool
		wantContains    []string
		wantNotContains []string
	}{
		{
			name:     "loopedWithNarration",
			loops:    3,
			narrated: true,
			wantContains: []string{
				"-stream_loop 2",
				"[0:a]volume=1.0[a0];[1:a]volume=0.20[a1]",
				"amix=inputs=2:duration=first:normalize=0[a]",
				"-c:v copy",
				"-shortest",
				"-t 12.500",
			},
		},
		{
			name:            "singlePlaySilentVideo",
			loops:           1,
			narrated:        false,
			wantContains:    []string{"[1:a]volume=0.20[a]"},
			wantNotContains: []string{"-stream_loop", "amix"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(mixArgs("in.mp4", "music.mp3", tt.loops, 0.2, 12.5, tt.narrated, "out.mp4"), " ")
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("mixArgs() missing %q in %q", want, got)
				}
			}
			for _, unwanted := range tt.wantNotContains {
				if strings.Contains(got, unwanted) {
					t.Errorf("mixArgs() should not contain %q", unwanted)
				}
			}
		})
	}
}

func TestSynthesizeArgs(t *testing.T) {
	req := SynthesizeRequest{ImagePath: "img.png", Width: 720, Height: 1280, Index: 2}

	silent := strings.Join(synthesizeArgs(req, 5, "fast", "out.mp4"), " ")
	for _, want := range []string{
		"-loop 1 -framerate 30 -i img.png",
		"anullsrc",
		"-t 5.000",
		"scale=720:1280:force_original_aspect_ratio=decrease,pad=720:1280:(ow-iw)/2:(oh-ih)/2",
		"-c:v libx264",
		"-pix_fmt yuv420p",
		"-c:a aac",
	} {
		if !strings.Contains(silent, want) {
			t.Errorf("synthesizeArgs() missing %q", want)
		}
	}

	req.AudioPath = "voice.m4a"
	narrated := strings.Join(synthesizeArgs(req, 3.2, "fast", "out.mp4"), " ")
	if strings.Contains(narrated, "anullsrc") {
		t.Error("synthesizeArgs() with audio should not add a silent track")
	}
	if !strings.Contains(narrated, "-i voice.m4a") || !strings.Contains(narrated, "-shortest") {
		t.Errorf("synthesizeArgs() = %q, want voice input and -shortest", narrated)
	}
}

func TestMergeArgs(t *testing.T) {
	tests := []struct {
		name    string
		audio   string
		want    string
		wantNot string
	}{
		{name: "voice", audio: "voice.m4a", want: "-i clip.mp4 -i voice.m4a -map 0:v:0 -map 1:a:0 -c:v copy", wantNot: "anullsrc"},
		{name: "noVoice", want: "-i clip.mp4 -f lavfi -i anullsrc=channel_layout=stereo:sample_rate=44100 -map 0:v:0 -map 1:a:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(mergeArgs(MergeRequest{VideoPath: "clip.mp4", AudioPath: tt.audio}, "out.mp4"), " ")
			if !strings.Contains(got, tt.want) {
				t.Errorf("mergeArgs() = %q, want %q", got, tt.want)
			}
			if tt.wantNot != "" && strings.Contains(got, tt.wantNot) {
				t.Errorf("mergeArgs() = %q, should not contain %q", got, tt.wantNot)
			}
			if !strings.Contains(got, "-c:a aac") || !strings.Contains(got, "-shortest") {
				t.Errorf("mergeArgs() = %q, want one aac track cut to the clip", got)
			}
		})
	}
}

func TestSegmentFileName(t *testing.T) {
	if got := SegmentFileName(3); got != "segment_3.mp4" {
		t.Errorf("SegmentFileName(3) = %q, want segment_3.mp4", got)
	}
}

func TestConcatenateEmptyTouchesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "never-created")
	resolver, _ := asset.NewResolver(asset.ResolverOptions{PublicRoot: root})
	runner := ffmpeg.NewRunner(ffmpeg.Options{FFmpegPath: "/nonexistent/ffmpeg", FFprobePath: "/nonexistent/ffprobe"})
	c := NewConcatenator(runner, resolver, ConcatenatorOptions{})

	out := filepath.Join(root, "out", "final.mp4")
	_, err := c.Concatenate(context.Background(), ConcatRequest{OutputPath: out})
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("Concatenate() error = %v, want ErrNoSegments", err)
	}
	if err.Error() != "no segment videos to concatenate" {
		t.Errorf("Error() = %q", err.Error())
	}
	if _, statErr := os.Stat(root); !os.IsNotExist(statErr) {
		t.Error("Concatenate() created directories for an empty request")
	}
}

func TestNewConcatenatorDefaults(t *testing.T) {
	c := NewConcatenator(ffmpeg.NewRunner(ffmpeg.Options{}), nil, ConcatenatorOptions{MusicVolume: 4})
	if c.musicVolume != DefaultMusicVolume {
		t.Errorf("musicVolume = %v, want %v", c.musicVolume, DefaultMusicVolume)
	}
	if c.driftTolerance != DefaultDriftTolerance {
		t.Errorf("driftTolerance = %v, want %v", c.driftTolerance, DefaultDriftTolerance)
	}
	if c.preset != "fast" {
		t.Errorf("preset = %q, want fast", c.preset)
	}
}
