package vidu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reelsmith/pkg/httputil"
)

const (
	DefaultBaseURL  = "https://api.vidu.com"
	DefaultModel    = "vidu2.0"
	DefaultDuration = 4
	defaultTimeout  = 60 * time.Second
)

type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *httputil.RetryClient
	limiter *rate.Limiter
}

type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// RequestsPerSecond throttles calls to the API. Zero means 2.
	RequestsPerSecond float64
	Burst             int
	Retry             httputil.RetryConfig
	HTTPClient        *http.Client
}

type UploadSession struct {
	ID     string `json:"id"`
	PutURL string `json:"put_url"`
}

type SubmitRequest struct {
	Images     []string `json:"images"`
	Prompt     string   `json:"prompt"`
	Duration   int      `json:"duration"`
	Resolution string   `json:"resolution,omitempty"`
	Model      string   `json:"model"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

type creationsResponse struct {
	State     string `json:"state"`
	ErrCode   string `json:"err_code"`
	Creations []struct {
		ID       string `json:"id"`
		URL      string `json:"url"`
		CoverURL string `json:"cover_url"`
	} `json:"creations"`
}

type errorResponse struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
	Error   string `json:"error"`
}

func NewClient(apiKey string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http:    httputil.NewRetryClient(httpClient, opts.Retry),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) CreateUpload(ctx context.Context) (UploadSession, error) {
	var session UploadSession
	if err := c.doJSON(ctx, "create upload", http.MethodPost, "/tools/v2/files/uploads", map[string]string{"scene": "vidu"}, &session); err != nil {
		return UploadSession{}, err
	}
	if session.ID == "" || session.PutURL == "" {
		return UploadSession{}, &APIError{Op: "create upload", Status: http.StatusOK, Message: "response has no upload id or put_url"}
	}
	return session, nil
}

// PutObject uploads data to the session's presigned URL and returns the
// ETag the finish call needs. The URL carries its own credentials.
func (c *Client) PutObject(ctx context.Context, putURL string, data []byte, contentType string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Op: "upload image", Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

func (c *Client) FinishUpload(ctx context.Context, id, etag string) (string, error) {
	var out struct {
		URI string `json:"uri"`
	}
	path := "/tools/v2/files/uploads/" + id + "/finish"
	if err := c.doJSON(ctx, "finish upload", http.MethodPut, path, map[string]string{"etag": etag}, &out); err != nil {
		return "", err
	}
	if out.URI == "" {
		return "", &APIError{Op: "finish upload", Status: http.StatusOK, Message: "response has no uri"}
	}
	return out.URI, nil
}

func (c *Client) SubmitImageToVideo(ctx context.Context, sr SubmitRequest) (string, error) {
	if sr.Model == "" {
		sr.Model = c.model
	}
	if sr.Duration == 0 {
		sr.Duration = DefaultDuration
	}
	// A retried submit can create and bill a second task, so it goes out once.
	var out submitResponse
	if err := c.exchange(ctx, c.http.Client().Do, "submit", http.MethodPost, "/ent/v2/img2video", sr, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", ErrNoTaskID
	}
	return out.TaskID, nil
}

func (c *Client) QueryTask(ctx context.Context, taskID string) (Task, error) {
	var out creationsResponse
	if err := c.doJSON(ctx, "query task", http.MethodGet, "/ent/v2/tasks/"+taskID+"/creations", nil, &out); err != nil {
		return Task{}, err
	}

	task := Task{ID: taskID, State: NormalizeState(out.State), ErrCode: out.ErrCode}
	for _, cr := range out.Creations {
		if cr.URL != "" {
			task.ResultURL = cr.URL
			break
		}
	}
	return task, nil
}

// Download stores the generated clip at dest.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download clip: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: "download clip", Status: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create clip file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write clip: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write clip: %w", err)
	}
	return os.Rename(tmp, dest)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	return c.exchange(ctx, c.http.Do, op, method, path, in, out)
}

func (c *Client) exchange(ctx context.Context, do func(*http.Request) (*http.Response, error), op, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := do(req)
	if err != nil {
		return fmt.Errorf("vidu %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Op: op, Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		for _, m := range []string{er.Message, er.Reason, er.Error} {
			if m != "" {
				return m
			}
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
