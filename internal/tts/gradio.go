package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelsmith/pkg/httputil"
)

const (
	defaultServerURL = "http://localhost:7860"
	defaultFunction  = "predict"
	defaultLanguage  = "en"
	defaultTimeout   = 180 * time.Second
)

type Options struct {
	ServerURL  string
	Function   string
	Voice      string
	Language   string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      httputil.RetryConfig
}

var _ Synthesizer = (*GradioClient)(nil)

type GradioClient struct {
	serverURL string
	function  string
	voice     string
	language  string
	token     string
	http      *httputil.RetryClient
}

func NewGradioClient(opts Options) *GradioClient {
	serverURL := strings.TrimRight(opts.ServerURL, "/")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	function := strings.Trim(opts.Function, "/")
	if function == "" {
		function = defaultFunction
	}
	language := opts.Language
	if language == "" {
		language = defaultLanguage
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &GradioClient{
		serverURL: serverURL,
		function:  function,
		voice:     opts.Voice,
		language:  language,
		token:     opts.Token,
		http:      httputil.NewRetryClient(client, opts.Retry),
	}
}

// Synthesize posts the call and then follows its event stream until the
// result is complete.
func (c *GradioClient) Synthesize(ctx context.Context, req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", ErrEmptyText
	}

	eventID, err := c.call(ctx, c.payload(text, req))
	if err != nil {
		return "", err
	}
	slog.Debug("Gradio call queued", "function", c.function, "event_id", eventID)

	data, err := c.await(ctx, eventID)
	if err != nil {
		return "", err
	}

	audioURL, err := c.fileURL(data)
	if err != nil {
		return "", err
	}
	slog.Debug("Narration ready", "url", audioURL)
	return audioURL, nil
}

func (c *GradioClient) payload(text string, req Request) []any {
	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}
	language := req.Language
	if language == "" {
		language = c.language
	}

	data := []any{text}
	if voice != "" {
		data = append(data, voice)
	}
	return append(data, language)
}

func (c *GradioClient) callURL() string {
	return c.serverURL + "/gradio_api/call/" + c.function
}

func (c *GradioClient) call(ctx context.Context, data []any) (string, error) {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return "", fmt.Errorf("marshal call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.callURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gradio call: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", &CallError{Stage: "call", Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	if out.EventID == "" {
		return "", ErrNoEvent
	}
	return out.EventID, nil
}

// await reads the server-sent event stream. Gradio emits "generating" and
// "heartbeat" events before a terminal "complete" or "error".
func (c *GradioClient) await(ctx context.Context, eventID string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.callURL()+"/"+url.PathEscape(eventID), nil)
	if err != nil {
		return nil, fmt.Errorf("create result request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gradio result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &CallError{Stage: "result", Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	return readEvents(resp.Body)
}

func readEvents(r io.Reader) (json.RawMessage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				return json.RawMessage(data), nil
			case "error":
				msg := data
				if msg == "" || msg == "null" {
					msg = "voice model failed"
				}
				return nil, &CallError{Stage: "result", Message: msg}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	return nil, &CallError{Stage: "result", Message: "stream ended before completion"}
}

// fileURL extracts the first output file. Gradio reports files either as a
// bare path or as a FileData object with url and path.
func (c *GradioClient) fileURL(data json.RawMessage) (string, error) {
	var outputs []json.RawMessage
	if err := json.Unmarshal(data, &outputs); err != nil {
		return "", fmt.Errorf("decode result: %w", err)
	}

	for _, out := range outputs {
		var path string
		if err := json.Unmarshal(out, &path); err == nil && path != "" {
			return c.absolute(path), nil
		}

		var file struct {
			URL  string `json:"url"`
			Path string `json:"path"`
		}
		if err := json.Unmarshal(out, &file); err == nil {
			if file.URL != "" {
				return file.URL, nil
			}
			if file.Path != "" {
				return c.absolute(file.Path), nil
			}
		}
	}
	return "", ErrNoAudioURL
}

func (c *GradioClient) absolute(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.serverURL + "/gradio_api/file=" + path
}

func (c *GradioClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
