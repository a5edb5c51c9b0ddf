package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reelsmith/internal/asset"
	"reelsmith/internal/credits"
	"reelsmith/internal/ffmpeg"
	"reelsmith/internal/imagegen"
	"reelsmith/internal/llm"
	"reelsmith/internal/media"
	"reelsmith/internal/script"
	"reelsmith/internal/storage"
	"reelsmith/internal/tts"
	"reelsmith/internal/video"
	"reelsmith/internal/vidu"
)

const maxUpstreamMessage = 160

// UserMessage turns an error into a short reason fit for end users. Details
// such as stderr and upstream bodies stay in the logs.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		errs := multi.Unwrap()
		if len(errs) == 1 {
			return UserMessage(errs[0])
		}
		if len(errs) > 1 {
			return fmt.Sprintf("%d segments failed. %s", len(errs), UserMessage(errs[0]))
		}
	}

	var segErr *script.SegmentError
	if errors.As(err, &segErr) {
		return fmt.Sprintf("Segment %d: %s", segErr.Index+1, reason(segErr.Err))
	}

	var notFound *asset.NotFoundError
	if errors.As(err, &notFound) && notFound.Index >= 0 {
		return fmt.Sprintf("Segment %d: %s", notFound.Index+1, reason(err))
	}

	return sentence(reason(err))
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func reason(err error) string {
	var (
		apiErr   *vidu.APIError
		fetchErr *media.FetchError
		procErr  *ffmpeg.ProcessError
		callErr  *tts.CallError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long and was stopped."
	case errors.Is(err, credits.ErrInsufficientCredits):
		return "You do not have enough credits for this operation."
	case errors.Is(err, ErrNoUser):
		return "A user id is required."
	case errors.Is(err, ErrMusicRequired):
		return "Choose a music track, or \"none\" for no music."
	case errors.Is(err, ErrNotConfigured):
		return "This feature is not configured on the server."
	case errors.Is(err, script.ErrNoSegments):
		return "There are no segment videos to concatenate."
	case errors.Is(err, script.ErrMissingImage):
		return "the segment has no image yet."
	case errors.Is(err, script.ErrMissingVoice):
		return "the segment has no voice track yet."
	case errors.Is(err, script.ErrMissingVideo):
		return "the segment has not been rendered yet."
	case errors.Is(err, script.ErrMissingScript):
		return "the segment has no narration text."
	case errors.Is(err, script.ErrInvalid):
		return "The storyboard is invalid."
	case errors.Is(err, asset.ErrNotFound):
		return "a referenced file is missing; regenerate it and try again."
	case errors.Is(err, asset.ErrInvalid):
		return "A file reference is invalid."
	case errors.Is(err, storage.ErrTrackNotFound):
		return "The selected music track does not exist."
	case errors.Is(err, vidu.ErrTaskFailed):
		return "The video service could not animate this image. Try a different image or prompt."
	case errors.Is(err, vidu.ErrTaskTimeout):
		return "The video service is taking too long. Please wait a moment and resubmit."
	case errors.As(err, &apiErr):
		if msg := shorten(apiErr.Message); msg != "" {
			return "The video service rejected the request: " + msg
		}
		return "The video service rejected the request."
	case errors.Is(err, vidu.ErrNoTaskID):
		return "The video service returned an incomplete response."
	case errors.Is(err, media.ErrUnsupportedMedia):
		return "The media file is not a supported image or audio format."
	case errors.As(err, &fetchErr):
		return "A media file could not be downloaded."
	case errors.Is(err, video.ErrUnreadableInput):
		return "An input file is not readable media."
	case errors.As(err, &procErr):
		return "Video processing failed."
	case errors.Is(err, imagegen.ErrDailyLimit):
		return "The daily image generation limit has been reached."
	case errors.Is(err, imagegen.ErrNoImage), errors.Is(err, imagegen.ErrEmptyPrompt):
		return "The image could not be generated from this description."
	case errors.Is(err, tts.ErrEmptyText):
		return "the segment has no narration text."
	case errors.As(err, &callErr), errors.Is(err, tts.ErrNoAudioURL), errors.Is(err, tts.ErrNoEvent):
		return "Voice generation failed."
	case errors.Is(err, llm.ErrEmptyStoryboard):
		return "The storyboard could not be generated for this topic."
	default:
		return "Something went wrong while producing the video."
	}
}

func shorten(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > maxUpstreamMessage {
		msg = msg[:maxUpstreamMessage] + "..."
	}
	return msg
}
