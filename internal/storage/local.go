package storage

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"reelsmith/internal/asset"
)

// LocalStorage writes user assets below the resolver's public root and reads
// music from a flat directory.
type LocalStorage struct {
	resolver *asset.Resolver
	musicDir string
}

func NewLocalStorage(resolver *asset.Resolver, musicDir string) *LocalStorage {
	return &LocalStorage{
		resolver: resolver,
		musicDir: musicDir,
	}
}

func (s *LocalStorage) Resolver() *asset.Resolver { return s.resolver }

func (s *LocalStorage) MusicDir() string { return s.musicDir }

// Save writes data into the user's directory for assetType. An empty
// filename gets a unique one with ext.
func (s *LocalStorage) Save(userID, assetType, filename, ext string, data []byte) (asset.Locator, string, error) {
	dir, err := s.resolver.EnsureUserDir(userID, assetType)
	if err != nil {
		return asset.Locator{}, "", err
	}
	if filename == "" {
		filename = UniqueName(assetType, ext)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return asset.Locator{}, "", fmt.Errorf("failed to write %s: %w", assetType, err)
	}

	return asset.UserScoped(assetType, filename, userID), path, nil
}

// Reserve returns a fresh path in the user's directory without creating the
// file, for tools that write the output themselves.
func (s *LocalStorage) Reserve(userID, assetType, filename string) (asset.Locator, string, error) {
	dir, err := s.resolver.EnsureUserDir(userID, assetType)
	if err != nil {
		return asset.Locator{}, "", err
	}
	return asset.UserScoped(assetType, filename, userID), filepath.Join(dir, filename), nil
}

// Remove deletes the file behind loc. Missing files are not an error.
func (s *LocalStorage) Remove(loc asset.Locator) error {
	path, err := s.resolver.Resolve(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (s *LocalStorage) Tracks(ctx context.Context) ([]Track, error) {
	entries, err := os.ReadDir(s.musicDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read music directory: %w", err)
	}

	var tracks []Track
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if musicExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			tracks = append(tracks, Track{
				Name: entry.Name(),
				Path: filepath.Join(s.musicDir, entry.Name()),
			})
		}
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Name < tracks[j].Name })

	return tracks, nil
}

// Track finds a track by file name, with or without its extension. The name
// "random" picks any track.
func (s *LocalStorage) Track(ctx context.Context, name string) (Track, error) {
	tracks, err := s.Tracks(ctx)
	if err != nil {
		return Track{}, err
	}
	if len(tracks) == 0 {
		return Track{}, fmt.Errorf("%w: library %s is empty", ErrTrackNotFound, s.musicDir)
	}

	want := strings.ToLower(strings.TrimSpace(name))
	if want == "random" {
		return tracks[rand.Intn(len(tracks))], nil
	}
	for _, t := range tracks {
		lower := strings.ToLower(t.Name)
		if lower == want || strings.TrimSuffix(lower, filepath.Ext(lower)) == want {
			return t, nil
		}
	}

	return Track{}, fmt.Errorf("%w: %q", ErrTrackNotFound, name)
}

func (s *LocalStorage) EnsureDirectories() error {
	if err := os.MkdirAll(s.resolver.Root(), 0755); err != nil {
		return fmt.Errorf("failed to create public root: %w", err)
	}
	if err := os.MkdirAll(s.musicDir, 0755); err != nil {
		return fmt.Errorf("failed to create music directory: %w", err)
	}
	return nil
}

// UniqueName builds "<prefix>_<uuid><ext>".
func UniqueName(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext)
}
