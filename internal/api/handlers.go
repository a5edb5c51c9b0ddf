package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"reelsmith/internal/app"
	"reelsmith/internal/asset"
	"reelsmith/internal/credits"
	"reelsmith/internal/imagegen"
	"reelsmith/internal/llm"
	"reelsmith/internal/media"
	"reelsmith/internal/platform"
	"reelsmith/internal/script"
	"reelsmith/internal/storage"
	"reelsmith/internal/tts"
	"reelsmith/internal/video"
	"reelsmith/internal/vidu"
)

const maxBodyBytes = 1 << 20

type batchFunc func(ctx context.Context, userID string, s script.Script) (*app.BatchResult, error)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GenerateStoryboard(w http.ResponseWriter, r *http.Request) {
	var req storyboardRequest
	if !h.decode(w, r, &req) {
		return
	}
	brief, err := req.brief()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.pipeline.GenerateScript(r.Context(), brief)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, newScriptResponse(s, nil))
}

func (h *Handler) PrepareAssets(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.pipeline.PrepareAssets)
}

func (h *Handler) RenderBasic(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.pipeline.RenderBasicSegments)
}

func (h *Handler) RenderVidu(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.pipeline.RenderViduSegments)
}

// batch runs a per-segment step. Partial failures still answer 200 with the
// failed segments marked; only a batch where every segment failed takes the
// status of its errors.
func (h *Handler) batch(w http.ResponseWriter, r *http.Request, run batchFunc) {
	var req scriptRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := req.toScript()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := run(r.Context(), userID(r, req.UserID), s)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := newScriptResponse(res.Script, res.Outcomes)
	status := http.StatusOK
	if resp.Failed > 0 {
		batchErr := res.Err()
		resp.Error = app.UserMessage(batchErr)
		slog.Warn("Segment batch had failures",
			"failed", resp.Failed,
			"segments", len(res.Outcomes),
			"error", batchErr,
			"request_id", middleware.GetReqID(r.Context()),
		)
		if resp.Failed == len(res.Outcomes) {
			status = statusFor(batchErr)
		}
	}
	h.json(w, status, resp)
}

func (h *Handler) Concat(w http.ResponseWriter, r *http.Request) {
	var req concatRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := req.toScript()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	final, err := h.pipeline.Concat(r.Context(), app.ConcatInput{
		UserID:      userID(r, req.UserID),
		Script:      s,
		Music:       req.Music,
		MusicVolume: req.MusicVolume,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, newVideoResponse(final))
}

func (h *Handler) Produce(w http.ResponseWriter, r *http.Request) {
	var req produceRequest
	if !h.decode(w, r, &req) {
		return
	}
	brief, err := req.brief()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.pipeline.Produce(r.Context(), app.ProduceRequest{
		UserID:      userID(r, req.UserID),
		Brief:       brief,
		Motion:      req.Motion,
		Music:       req.Music,
		MusicVolume: req.MusicVolume,
	})
	if err != nil {
		if res == nil {
			h.fail(w, r, err)
			return
		}
		h.logFailure(r, err)
		h.json(w, statusFor(err), produceResponse{
			Script: newScriptResponse(res.Script, nil),
			Error:  app.UserMessage(err),
		})
		return
	}

	h.json(w, http.StatusOK, produceResponse{
		Script: newScriptResponse(res.Script, nil),
		Video:  newVideoResponse(res.Video),
	})
}

func (h *Handler) ListMusic(w http.ResponseWriter, r *http.Request) {
	music := h.service.Music()
	if music == nil {
		h.fail(w, r, app.ErrNotConfigured)
		return
	}
	tracks, err := music.Tracks(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	names := make([]string, 0, len(tracks))
	for _, t := range tracks {
		names = append(names, t.Name)
	}
	h.json(w, http.StatusOK, map[string][]string{"tracks": names})
}

// SecureFile serves a user-scoped asset addressed by type, filename and
// userId. When the caller identifies itself it must own the file.
func (h *Handler) SecureFile(w http.ResponseWriter, r *http.Request) {
	resolver := h.service.Resolver()
	if resolver == nil {
		h.fail(w, r, app.ErrNotConfigured)
		return
	}

	q := r.URL.Query()
	loc := asset.UserScoped(q.Get("type"), q.Get("filename"), q.Get("userId"))
	if caller := r.Header.Get(UserHeader); caller != "" && caller != loc.UserID {
		h.json(w, http.StatusForbidden, errorResponse{Error: "You do not have access to this file."})
		return
	}

	path, err := resolver.ResolveExisting(loc, -1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}

func (req storyboardRequest) brief() (llm.Brief, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return llm.Brief{}, fmt.Errorf("%w: topic is required", script.ErrInvalid)
	}
	p, err := platform.Parse(req.Platform)
	if err != nil {
		return llm.Brief{}, fmt.Errorf("%w: %v", script.ErrInvalid, err)
	}
	return llm.Brief{
		Topic:           req.Topic,
		Tone:            req.Tone,
		Platform:        p,
		Segments:        req.Segments,
		WordsPerSegment: req.WordsPerSegment,
	}, nil
}

func userID(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		slog.Debug("Rejected request body", "path", r.URL.Path, "error", err)
		h.json(w, http.StatusBadRequest, errorResponse{Error: "The request body is not valid JSON."})
		return false
	}
	return true
}

// fail logs the full error and answers with its short user message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logFailure(r, err)
	h.json(w, statusFor(err), errorResponse{Error: app.UserMessage(err)})
}

func (h *Handler) logFailure(r *http.Request, err error) {
	slog.Error("Request failed",
		"path", r.URL.Path,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
}

func (h *Handler) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	var (
		apiErr   *vidu.APIError
		fetchErr *media.FetchError
		callErr  *tts.CallError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, vidu.ErrTaskTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, imagegen.ErrDailyLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, app.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrNoUser),
		errors.Is(err, app.ErrMusicRequired),
		errors.Is(err, script.ErrInvalid),
		errors.Is(err, script.ErrNoSegments),
		errors.Is(err, script.ErrMissingImage),
		errors.Is(err, script.ErrMissingVoice),
		errors.Is(err, script.ErrMissingVideo),
		errors.Is(err, script.ErrMissingScript),
		errors.Is(err, asset.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, asset.ErrNotFound), errors.Is(err, storage.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, media.ErrUnsupportedMedia), errors.Is(err, video.ErrUnreadableInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vidu.ErrTaskFailed),
		errors.Is(err, vidu.ErrNoTaskID),
		errors.As(err, &apiErr),
		errors.As(err, &fetchErr),
		errors.As(err, &callErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
