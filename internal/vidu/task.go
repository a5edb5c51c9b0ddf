// Package vidu drives image-to-video generation on the Vidu API: upload the
// still, submit the job, poll until it settles and fetch the clip.
package vidu

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type State string

const (
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// NormalizeState folds the service's task states into pending, success or
// failed. Unknown states count as pending so polling carries on.
func NormalizeState(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "succeeded", "completed":
		return StateSuccess
	case "failed", "failure", "error", "cancelled", "canceled":
		return StateFailed
	default:
		return StatePending
	}
}

func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

type Task struct {
	ID        string
	State     State
	ResultURL string
	ErrCode   string
}

var (
	ErrTaskFailed  = errors.New("video generation failed")
	ErrTaskTimeout = errors.New("video generation timed out")
	ErrNoTaskID    = errors.New("no task id returned")
)

// TaskFailedError is a failure the service reported for the task.
type TaskFailedError struct {
	TaskID  string
	Code    string
	Message string
}

func (e *TaskFailedError) Error() string {
	detail := e.Code
	if e.Message != "" {
		detail = strings.TrimSpace(e.Code + " " + e.Message)
	}
	if detail == "" {
		detail = "no reason given"
	}
	return fmt.Sprintf("vidu task %s failed: %s", e.TaskID, detail)
}

func (e *TaskFailedError) Is(target error) bool { return target == ErrTaskFailed }

// TaskTimeoutError means the poll budget ran out while the task was still
// pending. The task may still finish on the service side.
type TaskTimeoutError struct {
	TaskID   string
	Attempts int
	Elapsed  time.Duration
	// LastErr is the most recent poll error, if any poll failed.
	LastErr  error
}

func (e *TaskTimeoutError) Error() string {
	msg := fmt.Sprintf("vidu task %s still pending after %d polls (%s)", e.TaskID, e.Attempts, e.Elapsed.Round(time.Second))
	if e.LastErr != nil {
		msg += ": last poll error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TaskTimeoutError) Is(target error) bool { return target == ErrTaskTimeout }

// APIError wraps a non-success response from the Vidu API.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vidu %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("vidu %s: status %d", e.Op, e.Status)
}
