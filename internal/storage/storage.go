// Package storage keeps generated media on disk under per-user directories,
// exposes the background music library and, when configured, mirrors music
// from and publishes finished videos to Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"strings"
)

// NoMusic is the track name callers pass to request a video without a score.
const NoMusic = "none"

var ErrTrackNotFound = errors.New("music track not found")

type Track struct {
	Name string
	Path string
}

// MusicLibrary lists and resolves background tracks by name.
type MusicLibrary interface {
	Tracks(ctx context.Context) ([]Track, error)
	Track(ctx context.Context, name string) (Track, error)
}

// ObjectStore is the slice of a bucket the media fetcher and the pipeline
// need: pull a gs:// object to disk and push a finished file.
type ObjectStore interface {
	Download(ctx context.Context, ref, dest string) error
	Publish(ctx context.Context, src, object string) (string, error)
}

// IsNoMusic reports whether name asks for no background music.
func IsNoMusic(name string) bool {
	n := strings.TrimSpace(strings.ToLower(name))
	return n == "" || n == NoMusic
}

var musicExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
}
