package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	p := Default()

	if p.System.Storyboard == "" || p.System.Image == "" {
		t.Error("Default() system prompts are empty")
	}

	got, err := p.RenderStoryboard(StoryboardParams{
		Topic:           "octopus camouflage",
		Platform:        "tiktok",
		Segments:        4,
		WordsPerSegment: 25,
	})
	if err != nil {
		t.Fatalf("RenderStoryboard() error = %v", err)
	}
	for _, want := range []string{"octopus camouflage", "exactly 4 segments", "25 words", `"image_description"`} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderStoryboard() missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Tone:") {
		t.Error("RenderStoryboard() rendered an empty tone line")
	}
}

func TestLoadFromMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := `
system:
  storyboard: "Custom storyboard system"
image:
  generate: "Paint {{.Description}} in {{.Style}}"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if p.System.Storyboard != "Custom storyboard system" {
		t.Errorf("System.Storyboard = %q", p.System.Storyboard)
	}
	if p.System.Image != Default().System.Image {
		t.Error("System.Image should keep its default")
	}

	got, err := p.RenderImage(ImageParams{Description: "a lighthouse", Style: "watercolor"})
	if err != nil {
		t.Fatalf("RenderImage() error = %v", err)
	}
	if got != "Paint a lighthouse in watercolor" {
		t.Errorf("RenderImage() = %q", got)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	p, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if p.Motion.Generate != Default().Motion.Generate {
		t.Error("LoadFrom(missing) should return defaults")
	}
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("system: [unclosed"), 0644)
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on invalid YAML")
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
	}{
		{name: "badSyntax", tmpl: "{{.Description"},
		{name: "unknownField", tmpl: "{{.Nope}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := render(tt.tmpl, MotionParams{}); err == nil {
				t.Errorf("render(%q) should fail", tt.tmpl)
			}
		})
	}
}

func TestRenderMotion(t *testing.T) {
	got, err := Default().RenderMotion(MotionParams{Description: "A fox in snow", Script: "Foxes hear mice under snow."})
	if err != nil {
		t.Fatalf("RenderMotion() error = %v", err)
	}
	if !strings.Contains(got, "A fox in snow") || !strings.Contains(got, "Foxes hear mice") {
		t.Errorf("RenderMotion() = %q", got)
	}
}
