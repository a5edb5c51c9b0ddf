package api

import (
	"fmt"

	"reelsmith/internal/app"
	"reelsmith/internal/asset"
	"reelsmith/internal/platform"
	"reelsmith/internal/script"
	"reelsmith/internal/video"
)

type segmentDTO struct {
	Script           string `json:"script"`
	ImageDescription string `json:"imageDescription,omitempty"`
	Image            string `json:"image,omitempty"`
	Voice            string `json:"voice,omitempty"`
	Video            string `json:"video,omitempty"`
	Error            string `json:"error,omitempty"`
}

type scriptRequest struct {
	UserID   string       `json:"userId"`
	Title    string       `json:"title"`
	Platform string       `json:"platform"`
	Segments []segmentDTO `json:"segments"`
}

type concatRequest struct {
	scriptRequest
	Music       string  `json:"music"`
	MusicVolume float64 `json:"musicVolume"`
}

type storyboardRequest struct {
	Topic           string `json:"topic"`
	Tone            string `json:"tone"`
	Platform        string `json:"platform"`
	Segments        int    `json:"segments"`
	WordsPerSegment int    `json:"wordsPerSegment"`
}

type produceRequest struct {
	storyboardRequest
	UserID      string  `json:"userId"`
	Motion      bool    `json:"motion"`
	Music       string  `json:"music"`
	MusicVolume float64 `json:"musicVolume"`
}

type scriptResponse struct {
	Title    string       `json:"title"`
	Platform string       `json:"platform"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Segments []segmentDTO `json:"segments"`
	Failed   int          `json:"failed,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type videoResponse struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"durationSeconds"`
	ExpectedSeconds float64 `json:"expectedSeconds"`
	Drift           float64 `json:"drift"`
	DriftWarning    bool    `json:"driftWarning,omitempty"`
	MusicLoops      int     `json:"musicLoops,omitempty"`
}

type produceResponse struct {
	Script scriptResponse `json:"script"`
	Video  *videoResponse `json:"video,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (req scriptRequest) toScript() (script.Script, error) {
	p, err := platform.Parse(req.Platform)
	if err != nil {
		return script.Script{}, fmt.Errorf("%w: %v", script.ErrInvalid, err)
	}

	segs := make([]script.Segment, len(req.Segments))
	for i, d := range req.Segments {
		seg := script.Segment{Script: d.Script, ImageDescription: d.ImageDescription}
		if seg.ImageRef, err = parseRef(d.Image, i); err != nil {
			return script.Script{}, err
		}
		if seg.VoiceRef, err = parseRef(d.Voice, i); err != nil {
			return script.Script{}, err
		}
		if seg.VideoRef, err = parseRef(d.Video, i); err != nil {
			return script.Script{}, err
		}
		segs[i] = seg
	}

	return script.New(req.Title, p, segs...), nil
}

func parseRef(raw string, index int) (asset.Locator, error) {
	loc, err := asset.Parse(raw)
	if err != nil {
		return asset.Locator{}, &script.SegmentError{Index: index, Err: err}
	}
	return loc, nil
}

func newScriptResponse(s script.Script, outcomes []app.SegmentOutcome) scriptResponse {
	dims := s.Platform.Dimensions()
	resp := scriptResponse{
		Title:    s.Title,
		Platform: string(s.Platform),
		Width:    dims.Width,
		Height:   dims.Height,
		Segments: make([]segmentDTO, s.Len()),
	}
	for i, seg := range s.Segments {
		resp.Segments[i] = segmentDTO{
			Script:           seg.Script,
			ImageDescription: seg.ImageDescription,
			Image:            seg.ImageRef.String(),
			Voice:            seg.VoiceRef.String(),
			Video:            seg.VideoRef.String(),
		}
	}
	for _, o := range outcomes {
		if o.Err == nil || o.Index < 0 || o.Index >= len(resp.Segments) {
			continue
		}
		resp.Segments[o.Index].Error = app.UserMessage(o.Err)
		resp.Failed++
	}
	return resp
}

func newVideoResponse(v *video.FinalVideo) *videoResponse {
	if v == nil {
		return nil
	}
	return &videoResponse{
		URL:             v.URL,
		DurationSeconds: v.DurationSeconds,
		ExpectedSeconds: v.Diagnostics.ExpectedTotal,
		Drift:           v.Diagnostics.Drift,
		DriftWarning:    v.Diagnostics.DriftWarning,
		MusicLoops:      v.Diagnostics.MusicLoops,
	}
}
