package vidu

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"reelsmith/pkg/httputil"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
)

type TaskQuerier interface {
	QueryTask(ctx context.Context, taskID string) (Task, error)
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller checks a task on a fixed interval until it settles or the attempt
// budget is spent.
type Poller struct {
	querier     TaskQuerier
	interval    time.Duration
	maxAttempts int
	sleep       SleepFunc
	now         func() time.Time
}

type PollerOptions struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       SleepFunc
}

func NewPoller(q TaskQuerier, opts PollerOptions) *Poller {
	p := &Poller{
		querier:     q,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		sleep:       opts.Sleep,
		now:         time.Now,
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.sleep == nil {
		p.sleep = httputil.Sleep
	}
	return p
}

// Step polls once. done is true when the task reached a terminal state; a
// failed task is returned as a *TaskFailedError.
func (p *Poller) Step(ctx context.Context, taskID string) (Task, bool, error) {
	task, err := p.querier.QueryTask(ctx, taskID)
	if err != nil {
		return Task{}, false, err
	}

	switch task.State {
	case StateSuccess:
		if task.ResultURL == "" {
			return task, true, &APIError{Op: "query task", Status: 200, Message: "task succeeded without a creation url"}
		}
		return task, true, nil
	case StateFailed:
		return task, true, &TaskFailedError{TaskID: taskID, Code: task.ErrCode}
	default:
		return task, false, nil
	}
}

// Wait drives Step until the task settles. The first poll happens after one
// interval since a fresh task is never done. A poll that fails with a server
// or network error counts as a pending attempt; the task keeps running
// upstream either way.
func (p *Poller) Wait(ctx context.Context, taskID string) (Task, error) {
	start := p.now()
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.sleep(ctx, p.interval); err != nil {
			return Task{}, err
		}

		task, done, err := p.Step(ctx, taskID)
		if err != nil {
			if done || ctx.Err() != nil || !retryablePoll(err) {
				return task, err
			}
			lastErr = err
			slog.Warn("Vidu poll failed", "task", taskID, "attempt", attempt, "error", err)
			continue
		}
		if done {
			slog.Debug("Vidu task settled", "task", taskID, "state", task.State, "attempts", attempt)
			return task, nil
		}
		slog.Debug("Vidu task pending", "task", taskID, "attempt", attempt, "max", p.maxAttempts)
	}

	return Task{ID: taskID, State: StatePending}, &TaskTimeoutError{
		TaskID:   taskID,
		Attempts: p.maxAttempts,
		Elapsed:  p.now().Sub(start),
		LastErr:  lastErr,
	}
}

// retryablePoll reports whether a failed poll may succeed later. Client
// errors such as a bad key or an unknown task never will; a malformed body
// or a server error might.
func retryablePoll(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests {
			return true
		}
		return apiErr.Status < 400 || apiErr.Status >= 500
	}
	return true
}
