// Package tts synthesizes segment narration through a Gradio-hosted voice
// model. The model returns a file URL that the media layer fetches.
package tts

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyText  = errors.New("narration text is empty")
	ErrNoEvent    = errors.New("gradio call returned no event id")
	ErrNoAudioURL = errors.New("gradio result has no audio file")
)

type Request struct {
	Text     string
	Voice    string
	Language string
}

type Synthesizer interface {
	// Synthesize returns a URL for the rendered narration.
	Synthesize(ctx context.Context, req Request) (string, error)
}

// CallError is an upstream failure reported by the Gradio app itself.
type CallError struct {
	Stage   string
	Status  int
	Message string
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gradio %s: status %d: %s", e.Stage, e.Status, e.Message)
	}
	return fmt.Sprintf("gradio %s: %s", e.Stage, e.Message)
}
