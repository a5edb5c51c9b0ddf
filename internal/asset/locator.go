// Package asset addresses generated media. Callers refer to files either by a
// path under the public root or by a secure (type, filename, userId)
// reference; both normalize into a Locator which a Resolver turns into one
// absolute filesystem path.
package asset

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

type Kind int

const (
	KindNone Kind = iota
	KindLocalPath
	KindUserScoped
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocalPath:
		return "local"
	case KindUserScoped:
		return "user"
	case KindRemote:
		return "remote"
	default:
		return "none"
	}
}

// Asset types stored below a user's directory.
const (
	TypeImages = "images"
	TypeAudio  = "audio"
	TypeVideos = "videos"
)

const SecureFilePath = "/api/secure-file"

var (
	ErrInvalid  = errors.New("invalid asset reference")
	ErrNotFound = errors.New("asset not found")
)

type Locator struct {
	Kind     Kind
	Path     string
	Type     string
	Filename string
	UserID   string
	URL      string
}

func LocalPath(p string) Locator {
	return Locator{Kind: KindLocalPath, Path: p}
}

func UserScoped(assetType, filename, userID string) Locator {
	return Locator{Kind: KindUserScoped, Type: assetType, Filename: filename, UserID: userID}
}

func Remote(rawURL string) Locator {
	return Locator{Kind: KindRemote, URL: rawURL}
}

func (l Locator) IsZero() bool { return l.Kind == KindNone }

func (l Locator) String() string {
	switch l.Kind {
	case KindLocalPath:
		return l.Path
	case KindUserScoped:
		return SecureURL(l.Type, l.Filename, l.UserID)
	case KindRemote:
		return l.URL
	default:
		return ""
	}
}

// Parse normalizes a reference string as produced by the HTTP layer or the
// CLI. Secure-file URLs (relative or absolute) become user-scoped locators,
// other http(s), data: and gs:// references are remote, everything else is a
// path.
func Parse(ref string) (Locator, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Locator{}, nil
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "gs://") {
		return Remote(ref), nil
	}

	if strings.Contains(ref, SecureFilePath) {
		u, err := url.Parse(ref)
		if err != nil {
			return Locator{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if u.Path == SecureFilePath {
			return parseSecure(u.Query())
		}
	}

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return Remote(ref), nil
	}

	if strings.Contains(ref, "://") {
		return Locator{}, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalid, ref)
	}

	return LocalPath(ref), nil
}

func parseSecure(q url.Values) (Locator, error) {
	loc := UserScoped(q.Get("type"), q.Get("filename"), q.Get("userId"))
	if err := loc.validateScoped(); err != nil {
		return Locator{}, err
	}
	return loc, nil
}

func (l Locator) validateScoped() error {
	if l.Type == "" || l.Filename == "" || l.UserID == "" {
		return fmt.Errorf("%w: type, filename and userId are required", ErrInvalid)
	}
	if !validType(l.Type) {
		return fmt.Errorf("%w: unknown asset type %q", ErrInvalid, l.Type)
	}
	if !safeSegment(l.Filename) || !safeSegment(l.UserID) {
		return fmt.Errorf("%w: illegal path component", ErrInvalid)
	}
	return nil
}

// SecureURL builds the opaque reference handed to clients for a user file.
func SecureURL(assetType, filename, userID string) string {
	q := url.Values{}
	q.Set("type", assetType)
	q.Set("filename", filename)
	q.Set("userId", userID)
	return SecureFilePath + "?" + q.Encode()
}

// PublicURL builds the direct static path for a user file.
func PublicURL(assetType, filename, userID string) string {
	return path.Join("/", generatedDir, userID, assetType, filename)
}

func validType(t string) bool {
	switch t {
	case TypeImages, TypeAudio, TypeVideos:
		return true
	}
	return false
}

func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "\x00")
}
