// Package media pulls segment inputs from wherever the storyboard points at
// them and normalizes them into formats the video tools accept.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/storage"
	"reelsmith/pkg/httputil"
)

const defaultMaxBytes = 256 << 20

var ErrUnsupportedMedia = errors.New("unsupported media type")

// FetchError reports a source that answered with a non-success status.
type FetchError struct {
	Source string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.Source, e.Status)
}

type Fetcher struct {
	client   *httputil.RetryClient
	baseURL  *url.URL
	objects  storage.ObjectStore
	maxBytes int64
	images   *ImageNormalizer
	audio    *AudioNormalizer
}

type FetcherOptions struct {
	HTTPClient *http.Client
	Retry      httputil.RetryConfig
	// BaseURL resolves relative sources such as "/api/secure-file?...".
	BaseURL string
	// Objects serves gs:// sources. Optional.
	Objects  storage.ObjectStore
	MaxBytes int64
	Images   *ImageNormalizer
	Audio    *AudioNormalizer
}

func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	f := &Fetcher{
		client:   httputil.NewRetryClient(opts.HTTPClient, opts.Retry),
		objects:  opts.Objects,
		maxBytes: opts.MaxBytes,
		images:   opts.Images,
		audio:    opts.Audio,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = defaultMaxBytes
	}
	if f.images == nil {
		f.images = NewImageNormalizer()
	}
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse media base url: %w", err)
		}
		f.baseURL = u
	}
	return f, nil
}

// Fetch returns the raw bytes behind source: an absolute http(s) URL, a path
// relative to the base URL, a data: URI or a gs:// object.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return nil, fmt.Errorf("empty media source")
	case strings.HasPrefix(source, "data:"):
		return decodeDataURI(source)
	case strings.HasPrefix(source, "gs://"):
		return f.fetchObject(ctx, source)
	default:
		return f.fetchHTTP(ctx, source)
	}
}

// FetchImage downloads source and writes it to dst as a PNG of exactly
// width x height.
func (f *Fetcher) FetchImage(ctx context.Context, source, dst string, width, height int) error {
	data, err := f.Fetch(ctx, source)
	if err != nil {
		return err
	}
	if _, err := Sniff(data, ClassImage); err != nil {
		return err
	}
	return f.images.NormalizeBytes(data, dst, width, height)
}

// FetchAudio downloads source and transcodes it to AAC at dst.
func (f *Fetcher) FetchAudio(ctx context.Context, source, dst string) error {
	if f.audio == nil {
		return errors.New("audio normalizer not configured")
	}
	data, err := f.Fetch(ctx, source)
	if err != nil {
		return err
	}
	kind, err := Sniff(data, ClassAudio)
	if err != nil {
		return err
	}

	raw, err := os.CreateTemp(filepath.Dir(dst), "voice-*."+kind.Extension)
	if err != nil {
		return fmt.Errorf("create temp audio: %w", err)
	}
	defer func() { _ = os.Remove(raw.Name()) }()
	if _, err := raw.Write(data); err != nil {
		_ = raw.Close()
		return fmt.Errorf("write temp audio: %w", err)
	}
	if err := raw.Close(); err != nil {
		return fmt.Errorf("close temp audio: %w", err)
	}

	return f.audio.Normalize(ctx, raw.Name(), dst)
}

func (f *Fetcher) resolve(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse media source: %w", err)
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedMedia, u.Scheme)
		}
		return u.String(), nil
	}
	if f.baseURL == nil {
		return "", fmt.Errorf("relative media source %q needs a base url", source)
	}
	return f.baseURL.ResolveReference(u).String(), nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, source string) ([]byte, error) {
	target, err := f.resolve(source)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Source: target, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media data: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("media at %s exceeds %d bytes", target, f.maxBytes)
	}

	return data, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, ref string) ([]byte, error) {
	if f.objects == nil {
		return nil, fmt.Errorf("%w: gs:// sources need GCS configured", ErrUnsupportedMedia)
	}
	tmp, err := os.CreateTemp("", "gcs-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(name) }()

	if err := f.objects.Download(ctx, ref, name); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}

func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return []byte(text), nil
}
