package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/asset"
)

func newLocal(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	root := t.TempDir()
	r, err := asset.NewResolver(asset.ResolverOptions{PublicRoot: root})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	music := filepath.Join(root, "music")
	return NewLocalStorage(r, music), music
}

func TestLocalStorageSave(t *testing.T) {
	s, _ := newLocal(t)

	loc, path, err := s.Save("u1", asset.TypeAudio, "", "m4a", []byte("voice"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if loc.Kind != asset.KindUserScoped || loc.UserID != "u1" || loc.Type != asset.TypeAudio {
		t.Errorf("Save() locator = %+v", loc)
	}
	if !strings.HasSuffix(loc.Filename, ".m4a") {
		t.Errorf("Filename = %q, want .m4a suffix", loc.Filename)
	}

	resolved, err := s.Resolver().ResolveExisting(loc, -1)
	if err != nil {
		t.Fatalf("ResolveExisting() error = %v", err)
	}
	if resolved != path {
		t.Errorf("ResolveExisting() = %q, want %q", resolved, path)
	}

	if err := s.Remove(loc); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if err := s.Remove(loc); err != nil {
		t.Errorf("Remove() of a missing file error = %v", err)
	}
}

func TestLocalStorageSaveRejectsBadUser(t *testing.T) {
	s, _ := newLocal(t)
	if _, _, err := s.Save("../evil", asset.TypeImages, "x.png", "", nil); !errors.Is(err, asset.ErrInvalid) {
		t.Errorf("Save() error = %v, want asset.ErrInvalid", err)
	}
}

func TestLocalStorageTracks(t *testing.T) {
	s, music := newLocal(t)
	ctx := context.Background()

	tracks, err := s.Tracks(ctx)
	if err != nil || len(tracks) != 0 {
		t.Fatalf("Tracks() on missing dir = %v, %v; want empty", tracks, err)
	}

	if err := s.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"upbeat.mp3", "calm.m4a", "notes.txt"} {
		_ = os.WriteFile(filepath.Join(music, name), []byte("x"), 0644)
	}

	tracks, err = s.Tracks(ctx)
	if err != nil {
		t.Fatalf("Tracks() error = %v", err)
	}
	if len(tracks) != 2 || tracks[0].Name != "calm.m4a" || tracks[1].Name != "upbeat.mp3" {
		t.Errorf("Tracks() = %+v, want calm.m4a and upbeat.mp3", tracks)
	}

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{name: "exact", query: "upbeat.mp3", want: "upbeat.mp3"},
		{name: "noExtension", query: "Calm", want: "calm.m4a"},
		{name: "unknown", query: "metal", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Track(ctx, tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Track(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrTrackNotFound) {
					t.Errorf("Track(%q) error = %v, want ErrTrackNotFound", tt.query, err)
				}
				return
			}
			if got.Name != tt.want {
				t.Errorf("Track(%q) = %q, want %q", tt.query, got.Name, tt.want)
			}
		})
	}

	if _, err := s.Track(ctx, "random"); err != nil {
		t.Errorf("Track(random) error = %v", err)
	}
}

func TestIsNoMusic(t *testing.T) {
	for _, name := range []string{"", "none", " None "} {
		if !IsNoMusic(name) {
			t.Errorf("IsNoMusic(%q) = false, want true", name)
		}
	}
	if IsNoMusic("upbeat.mp3") {
		t.Error("IsNoMusic(upbeat.mp3) = true, want false")
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{ref: "gs://media/music/a.mp3", wantBucket: "media", wantObject: "music/a.mp3"},
		{ref: "music/a.mp3", wantBucket: "default", wantObject: "music/a.mp3"},
		{ref: "gs://media", wantErr: true},
		{ref: "gs:///a.mp3", wantErr: true},
		{ref: "", wantErr: true},
	}

	for _, tt := range tests {
		bucket, object, err := ParseRef(tt.ref, "default")
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			continue
		}
		if bucket != tt.wantBucket || object != tt.wantObject {
			t.Errorf("ParseRef(%q) = %q, %q; want %q, %q", tt.ref, bucket, object, tt.wantBucket, tt.wantObject)
		}
	}
}

func TestUniqueName(t *testing.T) {
	a := UniqueName("final", "mp4")
	b := UniqueName("final", ".mp4")
	if a == b {
		t.Error("UniqueName() returned the same name twice")
	}
	if !strings.HasPrefix(a, "final_") || !strings.HasSuffix(b, ".mp4") || strings.Contains(b, "..") {
		t.Errorf("UniqueName() = %q, %q", a, b)
	}
}
