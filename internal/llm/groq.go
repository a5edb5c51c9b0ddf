package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conneroisu/groq-go"

	"reelsmith/internal/script"
	"reelsmith/pkg/prompts"
)

const DefaultGroqModel = "llama-3.3-70b-versatile"

var _ Client = (*GroqClient)(nil)

type GroqClient struct {
	client  *groq.Client
	model   groq.ChatModel
	prompts *prompts.Prompts
}

func NewGroqClient(apiKey, model string, p *prompts.Prompts) (*GroqClient, error) {
	client, err := groq.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}
	if model == "" {
		model = DefaultGroqModel
	}
	if p == nil {
		p = prompts.Default()
	}

	return &GroqClient{
		client:  client,
		model:   groq.ChatModel(model),
		prompts: p,
	}, nil
}

func (c *GroqClient) GenerateScript(ctx context.Context, brief Brief) (script.Script, error) {
	brief = brief.withDefaults()

	prompt, err := c.prompts.RenderStoryboard(prompts.StoryboardParams{
		Topic:           brief.Topic,
		Tone:            brief.Tone,
		Platform:        string(brief.Platform),
		Segments:        brief.Segments,
		WordsPerSegment: brief.WordsPerSegment,
	})
	if err != nil {
		return script.Script{}, fmt.Errorf("render prompt: %w", err)
	}

	content, err := c.generateJSONContent(ctx, c.prompts.System.Storyboard, prompt)
	if err != nil {
		return script.Script{}, err
	}

	slog.Debug("LLM storyboard raw response", "content", content)

	s, err := parseStoryboard(content, brief)
	if err != nil {
		return script.Script{}, err
	}
	if s.Len() < brief.Segments {
		slog.Warn("Storyboard shorter than requested", "requested", brief.Segments, "got", s.Len())
	}
	return s, nil
}

func (c *GroqClient) generateJSONContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := groq.ChatCompletionRequest{
		Model: c.model,
		Messages: []groq.ChatCompletionMessage{
			{Role: groq.RoleSystem, Content: systemPrompt},
			{Role: groq.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &groq.ChatResponseFormat{Type: "json_object"},
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response")
	}

	return content, nil
}
