package vidu

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/h2non/filetype"

	"reelsmith/internal/platform"
)

type Stage string

const (
	StageUploading Stage = "uploading"
	StageSubmitted Stage = "submitted"
	StagePolling   Stage = "polling"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// API is the subset of Client the orchestrator drives.
type API interface {
	TaskQuerier
	CreateUpload(ctx context.Context) (UploadSession, error)
	PutObject(ctx context.Context, putURL string, data []byte, contentType string) (string, error)
	FinishUpload(ctx context.Context, id, etag string) (string, error)
	SubmitImageToVideo(ctx context.Context, req SubmitRequest) (string, error)
	Download(ctx context.Context, url, dest string) error
}

type Orchestrator struct {
	api    API
	poller *Poller
}

type Job struct {
	ImagePath  string
	Prompt     string
	Duration   int
	Resolution string
}

type Result struct {
	TaskID   string
	VideoURL string
	Stage    Stage
}

func NewOrchestrator(api API, poller *Poller) *Orchestrator {
	if poller == nil {
		poller = NewPoller(api, PollerOptions{})
	}
	return &Orchestrator{api: api, poller: poller}
}

// Run takes one image through upload, submission and polling. Each call is a
// fresh task; failures are never resubmitted.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Result, error) {
	res := &Result{Stage: StageUploading}

	uri, err := o.upload(ctx, job.ImagePath)
	if err != nil {
		res.Stage = StageFailed
		return res, err
	}

	duration := job.Duration
	if duration == 0 {
		duration = DefaultDuration
	}
	taskID, err := o.api.SubmitImageToVideo(ctx, SubmitRequest{
		Images:     []string{uri},
		Prompt:     job.Prompt,
		Duration:   duration,
		Resolution: job.Resolution,
	})
	if err != nil {
		res.Stage = StageFailed
		return res, fmt.Errorf("submit image to video: %w", err)
	}
	res.TaskID = taskID
	res.Stage = StageSubmitted
	slog.Info("Submitted vidu task", "task", taskID, "duration", duration)

	res.Stage = StagePolling
	task, err := o.poller.Wait(ctx, taskID)
	if err != nil {
		res.Stage = StageFailed
		return res, err
	}

	res.VideoURL = task.ResultURL
	res.Stage = StageDone
	return res, nil
}

// Download stores a finished task's clip locally.
func (o *Orchestrator) Download(ctx context.Context, url, dest string) error {
	return o.api.Download(ctx, url, dest)
}

func (o *Orchestrator) upload(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	session, err := o.api.CreateUpload(ctx)
	if err != nil {
		return "", fmt.Errorf("create upload session: %w", err)
	}
	contentType := "application/octet-stream"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
	}
	etag, err := o.api.PutObject(ctx, session.PutURL, data, contentType)
	if err != nil {
		return "", err
	}
	uri, err := o.api.FinishUpload(ctx, session.ID, etag)
	if err != nil {
		return "", fmt.Errorf("finish upload: %w", err)
	}
	return uri, nil
}

// ResolutionFor picks the Vidu output tier for a frame size.
func ResolutionFor(d platform.Dimensions) string {
	short := min(d.Width, d.Height)
	switch {
	case short <= 360:
		return "360p"
	case short <= 720:
		return "720p"
	default:
		return "1080p"
	}
}
