package config

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretPrefix marks a value that names a Secret Manager version instead of
// holding the secret itself.
const SecretPrefix = "sm://"

type SecretAccessor interface {
	Access(ctx context.Context, name string) (string, error)
}

type secretManagerAccessor struct {
	client *secretmanager.Client
}

func (a *secretManagerAccessor) Access(ctx context.Context, name string) (string, error) {
	resp, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	return string(resp.GetPayload().GetData()), nil
}

func (c *Config) secretFields() map[string]*string {
	return map[string]*string{
		"VIDU_API_KEY":   &c.ViduAPIKey,
		"GROQ_API_KEY":   &c.GroqAPIKey,
		"GEMINI_API_KEY": &c.GeminiAPIKey,
		"TTS_TOKEN":      &c.TTSToken,
	}
}

// resolveSecrets replaces every sm:// reference in place. A nil accessor
// opens a Secret Manager client, but only when a reference is present.
func resolveSecrets(ctx context.Context, cfg *Config, accessor SecretAccessor) error {
	fields := cfg.secretFields()

	pending := false
	for _, v := range fields {
		if strings.HasPrefix(*v, SecretPrefix) {
			pending = true
			break
		}
	}
	if !pending {
		return nil
	}

	if accessor == nil {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create secret manager client: %w", err)
		}
		defer client.Close()
		accessor = &secretManagerAccessor{client: client}
	}

	for key, v := range fields {
		if !strings.HasPrefix(*v, SecretPrefix) {
			continue
		}
		name := strings.TrimPrefix(*v, SecretPrefix)
		if !strings.Contains(name, "/versions/") {
			name += "/versions/latest"
		}
		value, err := accessor.Access(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve %s from %s: %w", key, name, err)
		}
		*v = strings.TrimSpace(value)
	}
	return nil
}
