package media

import (
	"fmt"

	"github.com/h2non/filetype"
)

type Class int

const (
	ClassAny Class = iota
	ClassImage
	ClassAudio
	ClassVideo
)

func (c Class) String() string {
	switch c {
	case ClassImage:
		return "image"
	case ClassAudio:
		return "audio"
	case ClassVideo:
		return "video"
	default:
		return "media"
	}
}

type Kind struct {
	Extension string
	MIME      string
}

// Sniff identifies data by its magic bytes and checks it belongs to want.
// Video containers are accepted as audio since ffmpeg can pull the track out.
func Sniff(data []byte, want Class) (Kind, error) {
	t, err := filetype.Match(data)
	if err != nil || t == filetype.Unknown {
		return Kind{}, fmt.Errorf("%w: unrecognized %s payload", ErrUnsupportedMedia, want)
	}

	ok := true
	switch want {
	case ClassImage:
		ok = filetype.IsImage(data)
	case ClassAudio:
		ok = filetype.IsAudio(data) || filetype.IsVideo(data)
	case ClassVideo:
		ok = filetype.IsVideo(data)
	}
	if !ok {
		return Kind{}, fmt.Errorf("%w: got %s, want %s", ErrUnsupportedMedia, t.MIME.Value, want)
	}

	return Kind{Extension: t.Extension, MIME: t.MIME.Value}, nil
}
