package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const publicHost = "https://storage.googleapis.com"

type GCSOptions struct {
	Bucket string
	// CredentialsFile is a service account key. Empty means application
	// default credentials.
	CredentialsFile string
	MusicPrefix     string
	PublishPrefix   string
}

type GCSStorage struct {
	client        *storage.Client
	bucket        string
	musicPrefix   string
	publishPrefix string
}

func NewGCSStorage(ctx context.Context, opts GCSOptions) (*GCSStorage, error) {
	if opts.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read GCS credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, storage.ScopeReadWrite)
		if err != nil {
			return nil, fmt.Errorf("failed to parse GCS credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithCredentials(creds))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client:        client,
		bucket:        opts.Bucket,
		musicPrefix:   strings.Trim(opts.MusicPrefix, "/"),
		publishPrefix: strings.Trim(opts.PublishPrefix, "/"),
	}, nil
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// ParseRef splits "gs://bucket/object". A bare object name refers to the
// default bucket.
func ParseRef(ref, defaultBucket string) (bucket, object string, err error) {
	if !strings.HasPrefix(ref, "gs://") {
		object = strings.TrimPrefix(ref, "/")
		if object == "" {
			return "", "", fmt.Errorf("empty object reference")
		}
		return defaultBucket, object, nil
	}
	rest := strings.TrimPrefix(ref, "gs://")
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gs reference %q", ref)
	}
	return bucket, object, nil
}

// Download copies an object to dest. The file is written to a temporary name
// first so a failed transfer never leaves a truncated file behind.
func (s *GCSStorage) Download(ctx context.Context, ref, dest string) error {
	bucket, object, err := ParseRef(ref, s.bucket)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer func() { _ = r.Close() }()

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to download file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close local file: %w", err)
	}
	return os.Rename(tmp, dest)
}

// Publish uploads src under the publish prefix and returns its public URL.
func (s *GCSStorage) Publish(ctx context.Context, src, object string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	name := object
	if s.publishPrefix != "" {
		name = path.Join(s.publishPrefix, object)
	}

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "video/mp4"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", name, err)
	}

	slog.Info("Published video", "bucket", s.bucket, "object", name)
	return fmt.Sprintf("%s/%s/%s", publicHost, s.bucket, name), nil
}

// MusicObjects lists audio objects below the music prefix.
func (s *GCSStorage) MusicObjects(ctx context.Context) ([]string, error) {
	query := &storage.Query{Prefix: s.musicPrefix}

	var objects []string
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if musicExtensions[strings.ToLower(path.Ext(attrs.Name))] {
			objects = append(objects, attrs.Name)
		}
	}

	return objects, nil
}

// SyncMusic downloads every remote track missing from dir and returns how
// many were fetched.
func (s *GCSStorage) SyncMusic(ctx context.Context, dir string) (int, error) {
	objects, err := s.MusicObjects(ctx)
	if err != nil {
		return 0, err
	}

	fetched := 0
	for _, object := range objects {
		local := filepath.Join(dir, path.Base(object))
		if _, err := os.Stat(local); err == nil {
			continue
		}
		if err := s.Download(ctx, object, local); err != nil {
			return fetched, fmt.Errorf("failed to sync %s: %w", object, err)
		}
		slog.Debug("Synced music track", "object", object)
		fetched++
	}

	return fetched, nil
}
