package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelsmith/internal/platform"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func fakeGemini(t *testing.T, parts []map[string]any, gotPrompt *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if gotPrompt != nil {
			*gotPrompt = string(body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": parts},
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, url string, opts Options) *Client {
	t.Helper()
	opts.APIKey = "test-key"
	opts.BaseURL = url
	c, err := NewClient(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestGenerate(t *testing.T) {
	var body string
	server := fakeGemini(t, []map[string]any{
		{"text": "Here is your image"},
		{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(pngHeader)}},
	}, &body)

	c := newTestClient(t, server.URL, Options{Style: "ink sketch"})
	img, err := c.Generate(context.Background(), "a red kite over dunes", platform.TikTok)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(img.Data) != string(pngHeader) {
		t.Errorf("Data = %v, want png header", img.Data)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q", img.MIMEType)
	}
	for _, want := range []string{"a red kite over dunes", "ink sketch", "9:16", "IMAGE"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %q", want)
		}
	}
}

func TestGenerateNoImage(t *testing.T) {
	server := fakeGemini(t, []map[string]any{{"text": "I cannot draw that"}}, nil)
	c := newTestClient(t, server.URL, Options{})

	if _, err := c.Generate(context.Background(), "anything", platform.YouTube); !errors.Is(err, ErrNoImage) {
		t.Errorf("Generate() error = %v, want ErrNoImage", err)
	}
}

func TestGenerateEmptyDescription(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", Options{})
	if _, err := c.Generate(context.Background(), "   ", platform.TikTok); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Generate() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestGenerateDailyLimit(t *testing.T) {
	usage := filepath.Join(t.TempDir(), "usage")
	today := time.Now().Format("2006-01-02")
	if err := os.WriteFile(usage, []byte(today+":2"), 0644); err != nil {
		t.Fatal(err)
	}

	server := fakeGemini(t, nil, nil)
	c := newTestClient(t, server.URL, Options{UsageFile: usage, DailyLimit: 2})

	if _, err := c.Generate(context.Background(), "a cat", platform.TikTok); !errors.Is(err, ErrDailyLimit) {
		t.Errorf("Generate() error = %v, want ErrDailyLimit", err)
	}
}

func TestUsageCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage")
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &usageCounter{path: path, limit: 2, now: func() time.Time { return day }}

	for i := 0; i < 2; i++ {
		if err := u.check(); err != nil {
			t.Fatalf("check() #%d error = %v", i, err)
		}
		u.increment()
	}
	if err := u.check(); !errors.Is(err, ErrDailyLimit) {
		t.Fatalf("check() error = %v, want ErrDailyLimit", err)
	}

	day = day.Add(24 * time.Hour)
	if err := u.check(); err != nil {
		t.Errorf("check() on a new day error = %v", err)
	}
	u.increment()
	if date, count := u.read(); date != "2026-03-02" || count != 1 {
		t.Errorf("read() = %s:%d, want 2026-03-02:1", date, count)
	}
}
