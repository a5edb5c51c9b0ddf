package script

import (
	"errors"
	"fmt"

	"reelsmith/internal/asset"
	"reelsmith/internal/platform"
)

var (
	ErrInvalid       = errors.New("invalid script")
	ErrNoSegments    = errors.New("no segment videos to concatenate")
	ErrIndexRange    = errors.New("segment index out of range")
	ErrMissingImage  = errors.New("segment has no image")
	ErrMissingVoice  = errors.New("segment has no voice track")
	ErrMissingVideo  = errors.New("segment has no rendered clip")
	ErrMissingScript = errors.New("segment has no script text")
)

// SegmentError ties a readiness failure to the segment that caused it.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index+1, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

type Segment struct {
	Script           string
	ImageDescription string
	ImageRef         asset.Locator
	VoiceRef         asset.Locator
	VideoRef         asset.Locator
}

func (s Segment) HasImage() bool { return !s.ImageRef.IsZero() }
func (s Segment) HasVoice() bool { return !s.VoiceRef.IsZero() }
func (s Segment) HasVideo() bool { return !s.VideoRef.IsZero() }

func (s Segment) WithImage(ref asset.Locator) Segment {
	s.ImageRef = ref
	return s
}

func (s Segment) WithVoice(ref asset.Locator) Segment {
	s.VoiceRef = ref
	return s
}

func (s Segment) WithVideo(ref asset.Locator) Segment {
	s.VideoRef = ref
	return s
}

type Script struct {
	Title    string
	Platform platform.Platform
	Segments []Segment
}

func New(title string, p platform.Platform, segments ...Segment) Script {
	return Script{Title: title, Platform: p, Segments: append([]Segment(nil), segments...)}
}

func (s Script) Width() int  { return s.Platform.Dimensions().Width }
func (s Script) Height() int { return s.Platform.Dimensions().Height }

func (s Script) Len() int { return len(s.Segments) }

// Segment returns the segment at i.
func (s Script) Segment(i int) (Segment, error) {
	if i < 0 || i >= len(s.Segments) {
		return Segment{}, fmt.Errorf("%w: %d of %d", ErrIndexRange, i, len(s.Segments))
	}
	return s.Segments[i], nil
}

// WithSegment returns a copy of the script with segment i replaced. The
// receiver is left untouched.
func (s Script) WithSegment(i int, seg Segment) (Script, error) {
	if i < 0 || i >= len(s.Segments) {
		return s, fmt.Errorf("%w: %d of %d", ErrIndexRange, i, len(s.Segments))
	}
	next := s
	next.Segments = make([]Segment, len(s.Segments))
	copy(next.Segments, s.Segments)
	next.Segments[i] = seg
	return next, nil
}

// VideoRefs lists every segment's clip in playback order.
func (s Script) VideoRefs() []asset.Locator {
	refs := make([]asset.Locator, 0, len(s.Segments))
	for _, seg := range s.Segments {
		refs = append(refs, seg.VideoRef)
	}
	return refs
}

func (s Script) Validate() error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalid)
	}
	if !s.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalid, s.Platform)
	}
	for i, seg := range s.Segments {
		if seg.Script == "" {
			return &SegmentError{Index: i, Err: ErrMissingScript}
		}
	}
	return nil
}

// ReadyForBasic checks the still-image synthesizer preconditions.
func ReadyForBasic(seg Segment) error {
	if !seg.HasImage() {
		return ErrMissingImage
	}
	if !seg.HasVoice() {
		return ErrMissingVoice
	}
	return nil
}

// ReadyForVidu checks the motion-video path preconditions. A voice track is
// optional there.
func ReadyForVidu(seg Segment) error {
	if !seg.HasImage() {
		return ErrMissingImage
	}
	return nil
}

// ReadyForMerge checks that a segment can have its voice attached to a clip.
func ReadyForMerge(seg Segment) error {
	if !seg.HasImage() {
		return ErrMissingImage
	}
	if !seg.HasVoice() {
		return ErrMissingVoice
	}
	return nil
}

// ReadyForConcat reports the first segment without a rendered clip.
func ReadyForConcat(s Script) error {
	if len(s.Segments) == 0 {
		return ErrNoSegments
	}
	for i, seg := range s.Segments {
		if !seg.HasVideo() {
			return &SegmentError{Index: i, Err: ErrMissingVideo}
		}
	}
	return nil
}
