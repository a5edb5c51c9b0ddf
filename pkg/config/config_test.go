package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)
	return tmp
}

func TestLoadFromYAML(t *testing.T) {
	tmp := chdirTemp(t)

	yaml := `
llm:
  model: test-model
vidu:
  poll_interval: 2s
  max_attempts: 10
pipeline:
  parallelism: 8
  purge_segment_clips: true
music:
  volume: 0.35
credits:
  limits:
    segment_vidu: 5
logging:
  format: json
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.Model != "test-model" {
		t.Errorf("LLM.Model = %q, want test-model", cfg.LLM.Model)
	}
	if cfg.Vidu.PollInterval != 2*time.Second || cfg.Vidu.MaxAttempts != 10 {
		t.Errorf("Vidu = %+v", cfg.Vidu)
	}
	if cfg.Pipeline.Parallelism != 8 || !cfg.Pipeline.PurgeSegmentClips {
		t.Errorf("Pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Music.Volume != 0.35 {
		t.Errorf("Music.Volume = %v, want 0.35", cfg.Music.Volume)
	}
	if cfg.Credits.Limits["segment_vidu"] != 5 {
		t.Errorf("Credits.Limits = %v", cfg.Credits.Limits)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("{}\n"), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "addr", got: cfg.Server.Addr, want: defaultAddr},
		{name: "publicRoot", got: cfg.Storage.PublicRoot, want: defaultPublicRoot},
		{name: "preset", got: cfg.Video.Preset, want: defaultPreset},
		{name: "driftTolerance", got: cfg.Video.DriftTolerance, want: defaultDriftTolerance},
		{name: "musicVolume", got: cfg.Music.Volume, want: defaultMusicVolume},
		{name: "viduModel", got: cfg.Vidu.Model, want: defaultViduModel},
		{name: "pollInterval", got: cfg.Vidu.PollInterval, want: defaultViduPollInterval},
		{name: "maxAttempts", got: cfg.Vidu.MaxAttempts, want: defaultViduMaxAttempts},
		{name: "parallelism", got: cfg.Pipeline.Parallelism, want: defaultParallelism},
		{name: "purge", got: cfg.Pipeline.PurgeSegmentClips, want: false},
		{name: "logFormat", got: cfg.Logging.Format, want: defaultLogFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("llm:\n  model: x"), 0644)

	t.Setenv("GROQ_API_KEY", "test-groq")
	t.Setenv("VIDU_API_KEY", "test-vidu")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")
	t.Setenv("PORT", "9090")
	t.Setenv("GCS_BUCKET", "env-bucket")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.GroqAPIKey != "test-groq" || cfg.ViduAPIKey != "test-vidu" {
		t.Errorf("keys = %q, %q", cfg.GroqAPIKey, cfg.ViduAPIKey)
	}
	if cfg.GCPProject != "test-project" {
		t.Errorf("GCPProject = %q, want test-project", cfg.GCPProject)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.GCS.Bucket != "env-bucket" {
		t.Errorf("GCS.Bucket = %q", cfg.GCS.Bucket)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	chdirTemp(t)

	_, err := Load(context.Background())
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("server: [oops"), 0644)

	if _, err := Load(context.Background()); err == nil || errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

type fakeAccessor struct {
	values map[string]string
	calls  []string
}

func (f *fakeAccessor) Access(ctx context.Context, name string) (string, error) {
	f.calls = append(f.calls, name)
	v, ok := f.values[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := &Config{
		ViduAPIKey: "sm://projects/p/secrets/vidu",
		GroqAPIKey: "sm://projects/p/secrets/groq/versions/3",
		TTSToken:   "plain-token",
	}
	acc := &fakeAccessor{values: map[string]string{
		"projects/p/secrets/vidu/versions/latest": "vidu-secret\n",
		"projects/p/secrets/groq/versions/3":      "groq-secret",
	}}

	if err := resolveSecrets(context.Background(), cfg, acc); err != nil {
		t.Fatalf("resolveSecrets() error = %v", err)
	}
	if cfg.ViduAPIKey != "vidu-secret" {
		t.Errorf("ViduAPIKey = %q", cfg.ViduAPIKey)
	}
	if cfg.GroqAPIKey != "groq-secret" {
		t.Errorf("GroqAPIKey = %q", cfg.GroqAPIKey)
	}
	if cfg.TTSToken != "plain-token" {
		t.Errorf("TTSToken = %q, plain values must pass through", cfg.TTSToken)
	}
	if len(acc.calls) != 2 {
		t.Errorf("Access called %d times, want 2", len(acc.calls))
	}
}

func TestResolveSecretsErrors(t *testing.T) {
	cfg := &Config{GeminiAPIKey: "sm://projects/p/secrets/missing"}
	err := resolveSecrets(context.Background(), cfg, &fakeAccessor{})
	if err == nil {
		t.Fatal("resolveSecrets() should fail for an unknown secret")
	}
}

func TestResolveSecretsNoReferences(t *testing.T) {
	cfg := &Config{GroqAPIKey: "direct"}
	// A nil accessor would dial Secret Manager; it must not be needed here.
	if err := resolveSecrets(context.Background(), cfg, nil); err != nil {
		t.Errorf("resolveSecrets() error = %v", err)
	}
}
