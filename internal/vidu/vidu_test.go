package vidu

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelsmith/internal/platform"
	"reelsmith/pkg/httputil"
)

type fakeVidu struct {
	server      *httptest.Server
	polls       atomic.Int32
	putStatus   int
	noTaskID    bool
	failOnPoll  int32
	succeedPoll int32
	submitFail  int
	submits     atomic.Int32
	gotAuth     atomic.Value
	submitted   atomic.Value
}

func newFakeVidu(t *testing.T) *fakeVidu {
	t.Helper()
	f := &fakeVidu{putStatus: http.StatusOK}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tools/v2/files/uploads", func(w http.ResponseWriter, r *http.Request) {
		f.gotAuth.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "up-1", "put_url": f.server.URL + "/put/up-1"})
	})
	mux.HandleFunc("PUT /put/up-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(f.putStatus)
	})
	mux.HandleFunc("PUT /tools/v2/files/uploads/up-1/finish", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["etag"] != "etag-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"bad etag"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"uri": "ssupload:?id=up-1"})
	})
	mux.HandleFunc("POST /ent/v2/img2video", func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.submitted.Store(req)
		f.submits.Add(1)
		if f.submitFail != 0 {
			w.WriteHeader(f.submitFail)
			_, _ = w.Write([]byte(`{"message":"upstream hiccup"}`))
			return
		}
		if f.noTaskID {
			_ = json.NewEncoder(w).Encode(map[string]string{"state": "created"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-9", "state": "created"})
	})
	mux.HandleFunc("GET /ent/v2/tasks/task-9/creations", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		switch {
		case f.failOnPoll > 0 && n >= f.failOnPoll:
			_ = json.NewEncoder(w).Encode(map[string]any{"state": "failed", "err_code": "AuditSubmitIllegal"})
		case f.succeedPoll > 0 && n >= f.succeedPoll:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"state":     "success",
				"creations": []map[string]string{{"id": "c1", "url": f.server.URL + "/clip.mp4"}},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"state": "processing"})
		}
	})
	mux.HandleFunc("GET /clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp4-bytes"))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeVidu) orchestrator(maxAttempts int) (*Orchestrator, *int) {
	client := NewClient("secret", Options{
		BaseURL:           f.server.URL,
		HTTPClient:        f.server.Client(),
		RequestsPerSecond: 1000,
		Retry:             httputil.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	sleeps := 0
	poller := NewPoller(client, PollerOptions{
		MaxAttempts: maxAttempts,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps++
			return ctx.Err()
		},
	})
	return NewOrchestrator(client, poller), &sleeps
}

func writeImage(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "still.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := os.WriteFile(p, png, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestOrchestratorSuccess(t *testing.T) {
	f := newFakeVidu(t)
	f.succeedPoll = 3
	o, sleeps := f.orchestrator(10)

	res, err := o.Run(context.Background(), Job{ImagePath: writeImage(t), Prompt: "slow pan", Resolution: "720p"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stage != StageDone || res.TaskID != "task-9" {
		t.Errorf("Run() = %+v, want done task-9", res)
	}
	if !strings.HasSuffix(res.VideoURL, "/clip.mp4") {
		t.Errorf("VideoURL = %q", res.VideoURL)
	}
	if *sleeps != 3 {
		t.Errorf("sleeps = %d, want 3", *sleeps)
	}
	if got := f.gotAuth.Load(); got != "Token secret" {
		t.Errorf("Authorization = %v, want Token secret", got)
	}
	sub := f.submitted.Load().(SubmitRequest)
	if sub.Duration != 4 || len(sub.Images) != 1 || sub.Images[0] != "ssupload:?id=up-1" || sub.Model != DefaultModel {
		t.Errorf("submitted = %+v", sub)
	}

	dest := filepath.Join(t.TempDir(), "clips", "seg.mp4")
	if err := o.Download(context.Background(), res.VideoURL, dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != "mp4-bytes" {
		t.Errorf("downloaded = %q", data)
	}
}

func TestOrchestratorFailedVersusTimeout(t *testing.T) {
	t.Run("failedOnThirdPoll", func(t *testing.T) {
		f := newFakeVidu(t)
		f.failOnPoll = 3
		o, _ := f.orchestrator(10)

		res, err := o.Run(context.Background(), Job{ImagePath: writeImage(t)})
		if !errors.Is(err, ErrTaskFailed) {
			t.Fatalf("Run() error = %v, want ErrTaskFailed", err)
		}
		if errors.Is(err, ErrTaskTimeout) {
			t.Error("a reported failure must not match ErrTaskTimeout")
		}
		var tf *TaskFailedError
		if !errors.As(err, &tf) || tf.Code != "AuditSubmitIllegal" {
			t.Errorf("error = %v, want TaskFailedError with the service code", err)
		}
		if res.Stage != StageFailed || res.TaskID != "task-9" {
			t.Errorf("Run() result = %+v", res)
		}
		if got := f.polls.Load(); got != 3 {
			t.Errorf("polls = %d, want 3", got)
		}
	})

	t.Run("neverResolves", func(t *testing.T) {
		f := newFakeVidu(t)
		o, sleeps := f.orchestrator(5)

		_, err := o.Run(context.Background(), Job{ImagePath: writeImage(t)})
		if !errors.Is(err, ErrTaskTimeout) {
			t.Fatalf("Run() error = %v, want ErrTaskTimeout", err)
		}
		if errors.Is(err, ErrTaskFailed) {
			t.Error("a timeout must not match ErrTaskFailed")
		}
		var to *TaskTimeoutError
		if !errors.As(err, &to) || to.Attempts != 5 {
			t.Errorf("error = %v, want TaskTimeoutError after 5 attempts", err)
		}
		if got := f.polls.Load(); got != 5 || *sleeps != 5 {
			t.Errorf("polls = %d, sleeps = %d; want 5 each", got, *sleeps)
		}
	})
}

func TestOrchestratorUploadFailures(t *testing.T) {
	t.Run("putRejected", func(t *testing.T) {
		f := newFakeVidu(t)
		f.putStatus = http.StatusForbidden
		o, _ := f.orchestrator(1)

		res, err := o.Run(context.Background(), Job{ImagePath: writeImage(t)})
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
			t.Fatalf("Run() error = %v, want APIError 403", err)
		}
		if res.Stage != StageFailed || res.TaskID != "" {
			t.Errorf("Run() result = %+v, want failed before submission", res)
		}
	})

	t.Run("put203Accepted", func(t *testing.T) {
		f := newFakeVidu(t)
		f.putStatus = http.StatusNonAuthoritativeInfo
		f.succeedPoll = 1
		o, _ := f.orchestrator(2)

		if _, err := o.Run(context.Background(), Job{ImagePath: writeImage(t)}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	})

	t.Run("noTaskID", func(t *testing.T) {
		f := newFakeVidu(t)
		f.noTaskID = true
		o, _ := f.orchestrator(1)

		if _, err := o.Run(context.Background(), Job{ImagePath: writeImage(t)}); !errors.Is(err, ErrNoTaskID) {
			t.Fatalf("Run() error = %v, want ErrNoTaskID", err)
		}
	})

	t.Run("missingImage", func(t *testing.T) {
		f := newFakeVidu(t)
		o, _ := f.orchestrator(1)
		if _, err := o.Run(context.Background(), Job{ImagePath: "/nope.png"}); err == nil {
			t.Fatal("Run() with a missing image should fail")
		}
	})
}

type scriptedQuerier struct {
	tasks []Task
	// errs[i], when set, fails the i-th poll.
	errs  []error
	calls int
}

func (q *scriptedQuerier) QueryTask(ctx context.Context, id string) (Task, error) {
	i := q.calls
	q.calls++
	if i < len(q.errs) && q.errs[i] != nil {
		return Task{}, q.errs[i]
	}
	return q.tasks[min(i, len(q.tasks)-1)], nil
}

func TestSubmitIsNotRetried(t *testing.T) {
	f := newFakeVidu(t)
	f.submitFail = http.StatusBadGateway
	o, _ := f.orchestrator(1)

	_, err := o.Run(context.Background(), Job{ImagePath: writeImage(t)})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("Run() error = %v, want APIError 502", err)
	}
	if got := f.submits.Load(); got != 1 {
		t.Errorf("submits = %d, want 1", got)
	}
}

func TestPollerStep(t *testing.T) {
	tests := []struct {
		name     string
		task     Task
		wantDone bool
		wantErr  error
	}{
		{name: "pending", task: Task{State: StatePending}},
		{name: "success", task: Task{State: StateSuccess, ResultURL: "https://x/clip.mp4"}, wantDone: true},
		{name: "successWithoutURL", task: Task{State: StateSuccess}, wantDone: true},
		{name: "failed", task: Task{State: StateFailed, ErrCode: "E1"}, wantDone: true, wantErr: ErrTaskFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(&scriptedQuerier{tasks: []Task{tt.task}}, PollerOptions{})
			_, done, err := p.Step(context.Background(), "t1")
			if done != tt.wantDone {
				t.Errorf("Step() done = %v, want %v", done, tt.wantDone)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Step() error = %v, want %v", err, tt.wantErr)
			}
			if tt.name == "successWithoutURL" {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Errorf("Step() error = %v, want APIError", err)
				}
			}
		})
	}
}

func TestPollerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPoller(&scriptedQuerier{tasks: []Task{{State: StatePending}}}, PollerOptions{})
	if _, err := p.Wait(ctx, "t1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestPollerFailedPolls(t *testing.T) {
	noSleep := func(context.Context, time.Duration) error { return nil }
	badGateway := &APIError{Op: "query task", Status: http.StatusBadGateway, Message: "bad gateway"}
	done := Task{State: StateSuccess, ResultURL: "https://x/clip.mp4"}
	pending := Task{State: StatePending}

	tests := []struct {
		name      string
		tasks     []Task
		errs      []error
		wantCalls int
		wantErr   error
		wantAPI   bool
	}{
		{
			name:      "serverErrorThenSuccess",
			tasks:     []Task{pending, pending, done},
			errs:      []error{badGateway},
			wantCalls: 3,
		},
		{
			name:      "malformedThenSuccess",
			tasks:     []Task{done},
			errs:      []error{&APIError{Op: "query task", Status: http.StatusOK, Message: "malformed response"}},
			wantCalls: 2,
		},
		{
			name:      "networkErrorThenSuccess",
			tasks:     []Task{done},
			errs:      []error{errors.New("connection reset")},
			wantCalls: 2,
		},
		{
			name:      "unauthorizedStops",
			tasks:     []Task{done},
			errs:      []error{&APIError{Op: "query task", Status: http.StatusUnauthorized}},
			wantCalls: 1,
			wantAPI:   true,
		},
		{
			name:      "failingUntilBudget",
			tasks:     []Task{pending},
			errs:      []error{badGateway, badGateway, badGateway},
			wantCalls: 3,
			wantErr:   ErrTaskTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &scriptedQuerier{tasks: tt.tasks, errs: tt.errs}
			p := NewPoller(q, PollerOptions{MaxAttempts: 3, Sleep: noSleep})
			task, err := p.Wait(context.Background(), "t1")

			if q.calls != tt.wantCalls {
				t.Errorf("polls = %d, want %d", q.calls, tt.wantCalls)
			}
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Wait() error = %v, want %v", err, tt.wantErr)
				}
				var timeout *TaskTimeoutError
				if errors.As(err, &timeout) && timeout.LastErr != badGateway {
					t.Errorf("LastErr = %v, want the last poll error", timeout.LastErr)
				}
				if errors.Is(err, ErrTaskFailed) {
					t.Error("timeout must not match ErrTaskFailed")
				}
			case tt.wantAPI:
				var apiErr *APIError
				if !errors.As(err, &apiErr) || errors.Is(err, ErrTaskTimeout) {
					t.Errorf("Wait() error = %v, want the APIError", err)
				}
			default:
				if err != nil {
					t.Fatalf("Wait() error = %v", err)
				}
				if task.ResultURL != done.ResultURL {
					t.Errorf("ResultURL = %q", task.ResultURL)
				}
			}
		})
	}
}

func TestNormalizeState(t *testing.T) {
	tests := map[string]State{
		"created":    StatePending,
		"queueing":   StatePending,
		"processing": StatePending,
		"success":    StateSuccess,
		"SUCCESS":    StateSuccess,
		"failed":     StateFailed,
		"":           StatePending,
	}
	for raw, want := range tests {
		if got := NormalizeState(raw); got != want {
			t.Errorf("NormalizeState(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestResolutionFor(t *testing.T) {
	tests := []struct {
		p    platform.Platform
		want string
	}{
		{p: platform.TikTok, want: "720p"},
		{p: platform.YouTube, want: "720p"},
		{p: platform.Instagram, want: "1080p"},
	}
	for _, tt := range tests {
		if got := ResolutionFor(tt.p.Dimensions()); got != tt.want {
			t.Errorf("ResolutionFor(%s) = %q, want %q", tt.p, got, tt.want)
		}
	}
}
