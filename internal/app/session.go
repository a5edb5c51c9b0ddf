package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"reelsmith/internal/asset"
	"reelsmith/internal/video"
)

// session is one render request's scratch space. Clips are built in a hidden
// directory beside the user's videos and moved out under a request-unique
// name, so concurrent requests for the same user never share a file.
type session struct {
	id     string
	userID string
	dir    string
	final  string
}

func newSession(resolver *asset.Resolver, userID string) (*session, error) {
	videos, err := resolver.EnsureUserDir(userID, asset.TypeVideos)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()[:8]
	dir := filepath.Join(videos, ".run-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &session{id: id, userID: userID, dir: dir, final: videos}, nil
}

func (s *session) path(name string) string { return filepath.Join(s.dir, name) }

func (s *session) clipName(index int) string {
	return fmt.Sprintf("%s_%s", s.id, video.SegmentFileName(index))
}

// keep moves a finished clip out of the scratch directory.
func (s *session) keep(src string, index int) (asset.Locator, error) {
	name := s.clipName(index)
	if err := os.Rename(src, filepath.Join(s.final, name)); err != nil {
		return asset.Locator{}, fmt.Errorf("store segment clip: %w", err)
	}
	return asset.UserScoped(asset.TypeVideos, name, s.userID), nil
}

func (s *session) close() {
	_ = os.RemoveAll(s.dir)
}
