// Package llm turns a topic brief into a storyboard script.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reelsmith/internal/platform"
	"reelsmith/internal/script"
)

const (
	DefaultSegments        = 5
	MaxSegments            = 12
	DefaultWordsPerSegment = 25
)

var ErrEmptyStoryboard = errors.New("storyboard has no usable segments")

type Brief struct {
	Topic           string
	Tone            string
	Platform        platform.Platform
	Segments        int
	WordsPerSegment int
}

func (b Brief) withDefaults() Brief {
	if b.Segments <= 0 {
		b.Segments = DefaultSegments
	}
	if b.Segments > MaxSegments {
		b.Segments = MaxSegments
	}
	if b.WordsPerSegment <= 0 {
		b.WordsPerSegment = DefaultWordsPerSegment
	}
	if !b.Platform.Valid() {
		b.Platform = platform.Default
	}
	return b
}

type Client interface {
	GenerateScript(ctx context.Context, brief Brief) (script.Script, error)
}

type storyboardSegment struct {
	Script           string `json:"script"`
	ImageDescription string `json:"image_description"`
}

// parseStoryboard accepts the object form the prompt asks for and tolerates
// models that answer with a bare segment array or a differently named key.
func parseStoryboard(content string, brief Brief) (script.Script, error) {
	var head struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal([]byte(content), &head)

	raw, err := parseJSONArray[storyboardSegment](content, []string{"segments", "storyboard", "scenes"})
	if err != nil {
		return script.Script{}, err
	}

	segments := make([]script.Segment, 0, len(raw))
	for _, s := range raw {
		text := strings.TrimSpace(s.Script)
		if text == "" {
			continue
		}
		desc := strings.TrimSpace(s.ImageDescription)
		if desc == "" {
			desc = text
		}
		segments = append(segments, script.Segment{Script: text, ImageDescription: desc})
		if len(segments) == brief.Segments {
			break
		}
	}
	if len(segments) == 0 {
		return script.Script{}, ErrEmptyStoryboard
	}

	title := cleanTitle(head.Title)
	if title == "" {
		title = cleanTitle(brief.Topic)
	}

	return script.New(title, brief.Platform, segments...), nil
}

func parseJSONArray[T any](content string, keys []string) ([]T, error) {
	var direct []T
	if err := json.Unmarshal([]byte(content), &direct); err == nil && len(direct) > 0 {
		return direct, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	for _, key := range keys {
		var items []T
		if msg, ok := wrapped[key]; ok && json.Unmarshal(msg, &items) == nil && len(items) > 0 {
			return items, nil
		}
	}

	for _, msg := range wrapped {
		var items []T
		if json.Unmarshal(msg, &items) == nil && len(items) > 0 {
			return items, nil
		}
	}

	return nil, ErrEmptyStoryboard
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'")

	if idx := strings.Index(title, "\n"); idx > 0 {
		title = title[:idx]
	}

	title = strings.TrimSpace(title)

	if len(title) > 100 {
		title = title[:100]
	}

	return title
}
