package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "prompts.yaml"

//go:embed default.yaml
var defaultPrompts []byte

type Prompts struct {
	System     SystemPrompts     `yaml:"system"`
	Storyboard StoryboardPrompts `yaml:"storyboard"`
	Image      ImagePrompts      `yaml:"image"`
	Motion     MotionPrompts     `yaml:"motion"`
}

type SystemPrompts struct {
	Storyboard string `yaml:"storyboard"`
	Image      string `yaml:"image"`
}

type StoryboardPrompts struct {
	Generate string `yaml:"generate"`
}

type ImagePrompts struct {
	Generate string `yaml:"generate"`
}

type MotionPrompts struct {
	Generate string `yaml:"generate"`
}

type StoryboardParams struct {
	Topic           string
	Tone            string
	Platform        string
	Segments        int
	WordsPerSegment int
}

type ImageParams struct {
	Description string
	Style       string
	Aspect      string
}

type MotionParams struct {
	Description string
	Script      string
}

// Default returns the prompts compiled into the binary.
func Default() *Prompts {
	var p Prompts
	if err := yaml.Unmarshal(defaultPrompts, &p); err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	return &p
}

func Load() (*Prompts, error) {
	return LoadFrom(DefaultPath)
}

// LoadFrom reads prompt overrides from path. Templates the file leaves empty
// keep their built-in text; a missing file means all defaults.
func LoadFrom(path string) (*Prompts, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	p.merge(override)

	return p, nil
}

func (p *Prompts) merge(o Prompts) {
	setIf(&p.System.Storyboard, o.System.Storyboard)
	setIf(&p.System.Image, o.System.Image)
	setIf(&p.Storyboard.Generate, o.Storyboard.Generate)
	setIf(&p.Image.Generate, o.Image.Generate)
	setIf(&p.Motion.Generate, o.Motion.Generate)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (p *Prompts) RenderStoryboard(params StoryboardParams) (string, error) {
	return render(p.Storyboard.Generate, params)
}

func (p *Prompts) RenderImage(params ImageParams) (string, error) {
	return render(p.Image.Generate, params)
}

func (p *Prompts) RenderMotion(params MotionParams) (string, error) {
	return render(p.Motion.Generate, params)
}

func render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
