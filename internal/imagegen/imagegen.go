// Package imagegen produces segment illustrations with a Gemini image model.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"reelsmith/internal/platform"
	"reelsmith/pkg/prompts"
)

const (
	DefaultModel = "gemini-2.5-flash-image"
	DefaultStyle = "cinematic photograph, soft natural light"
)

var (
	ErrNoImage     = errors.New("model returned no image")
	ErrDailyLimit  = errors.New("daily image generation limit reached")
	ErrEmptyPrompt = errors.New("image description is empty")
)

type Image struct {
	Data     []byte
	MIMEType string
}

type Generator interface {
	Generate(ctx context.Context, description string, p platform.Platform) (Image, error)
}

type Options struct {
	APIKey   string
	Project  string
	Location string
	Model    string
	Style    string
	BaseURL  string

	// DailyLimit caps requests per calendar day when UsageFile is set.
	DailyLimit int
	UsageFile  string
}

var _ Generator = (*Client)(nil)

type Client struct {
	client  *genai.Client
	model   string
	style   string
	prompts *prompts.Prompts
	usage   *usageCounter
}

func NewClient(ctx context.Context, opts Options, p *prompts.Prompts) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.APIKey == "" {
		cfg = &genai.ClientConfig{
			Project:  opts.Project,
			Location: opts.Location,
			Backend:  genai.BackendVertexAI,
		}
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Style == "" {
		opts.Style = DefaultStyle
	}
	if p == nil {
		p = prompts.Default()
	}

	c := &Client{
		client:  client,
		model:   opts.Model,
		style:   opts.Style,
		prompts: p,
	}
	if opts.UsageFile != "" && opts.DailyLimit > 0 {
		c.usage = &usageCounter{path: opts.UsageFile, limit: opts.DailyLimit, now: time.Now}
	}
	return c, nil
}

func (c *Client) Generate(ctx context.Context, description string, p platform.Platform) (Image, error) {
	if strings.TrimSpace(description) == "" {
		return Image{}, ErrEmptyPrompt
	}
	if !p.Valid() {
		p = platform.Default
	}

	prompt, err := c.prompts.RenderImage(prompts.ImageParams{
		Description: description,
		Style:       c.style,
		Aspect:      p.Dimensions().AspectRatio(),
	})
	if err != nil {
		return Image{}, fmt.Errorf("render prompt: %w", err)
	}

	if c.usage != nil {
		if err := c.usage.check(); err != nil {
			return Image{}, err
		}
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: c.prompts.System.Image}},
		},
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return Image{}, fmt.Errorf("generate image: %w", err)
	}

	if c.usage != nil {
		c.usage.increment()
	}

	img, ok := firstImage(resp)
	if !ok {
		return Image{}, ErrNoImage
	}
	slog.Debug("Generated image", "model", c.model, "bytes", len(img.Data), "mime", img.MIMEType)
	return img, nil
}

func firstImage(resp *genai.GenerateContentResponse) (Image, bool) {
	if resp == nil {
		return Image{}, false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, true
			}
		}
	}
	return Image{}, false
}

// usageCounter persists a "date:count" pair so the limit survives restarts.
type usageCounter struct {
	path  string
	limit int
	now   func() time.Time
}

func (u *usageCounter) check() error {
	date, count := u.read()
	if date != u.today() {
		return nil
	}
	if count >= u.limit {
		return fmt.Errorf("%w: %d requests, resets tomorrow", ErrDailyLimit, u.limit)
	}
	return nil
}

func (u *usageCounter) increment() {
	date, count := u.read()
	today := u.today()
	if date != today {
		count = 0
	}
	count++

	if err := os.WriteFile(u.path, []byte(fmt.Sprintf("%s:%d", today, count)), 0644); err != nil {
		slog.Warn("Failed to record image usage", "path", u.path, "error", err)
	}
}

func (u *usageCounter) read() (string, int) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		return "", 0
	}
	parts := strings.Split(strings.TrimSpace(string(data)), ":")
	if len(parts) != 2 {
		return "", 0
	}
	count, _ := strconv.Atoi(parts[1])
	return parts[0], count
}

func (u *usageCounter) today() string {
	return u.now().Format("2006-01-02")
}
