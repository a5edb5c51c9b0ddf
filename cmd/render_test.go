package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"reelsmith/internal/asset"
)

func TestLocalRef(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ref  string
		kind asset.Kind
		path string
	}{
		{name: "relativePath", ref: "clips/a.mp4", kind: asset.KindLocalPath, path: filepath.Join(wd, "clips", "a.mp4")},
		{name: "absolutePath", ref: "/tmp/a.mp4", kind: asset.KindLocalPath, path: "/tmp/a.mp4"},
		{name: "remote", ref: "https://example.com/a.mp4", kind: asset.KindRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := localRef(tt.ref)
			if err != nil {
				t.Fatalf("localRef() error = %v", err)
			}
			if loc.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", loc.Kind, tt.kind)
			}
			if tt.path != "" && loc.Path != tt.path {
				t.Errorf("Path = %q, want %q", loc.Path, tt.path)
			}
		})
	}
}
