package asset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const generatedDir = "generated"

// NotFoundError names the missing file and, when known, the position of the
// entry that referenced it.
type NotFoundError struct {
	Path  string
	Index int
}

func (e *NotFoundError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("asset not found: %s (entry %d)", e.Path, e.Index)
	}
	return fmt.Sprintf("asset not found: %s", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type Resolver struct {
	root          string
	allowExternal bool
}

type ResolverOptions struct {
	PublicRoot string
	// AllowExternal lets absolute paths outside the public root through. The
	// CLI sets it; the HTTP layer does not.
	AllowExternal bool
}

func NewResolver(opts ResolverOptions) (*Resolver, error) {
	root := strings.TrimSpace(opts.PublicRoot)
	if root == "" {
		return nil, errors.New("asset: public root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("asset: resolve public root: %w", err)
	}
	return &Resolver{root: abs, allowExternal: opts.AllowExternal}, nil
}

func (r *Resolver) Root() string { return r.root }

// UserDir is the directory holding one user's assets of the given type.
func (r *Resolver) UserDir(userID, assetType string) string {
	return filepath.Join(r.root, generatedDir, userID, assetType)
}

// EnsureUserDir creates the user's directory for the asset type.
func (r *Resolver) EnsureUserDir(userID, assetType string) (string, error) {
	if !safeSegment(userID) || !validType(assetType) {
		return "", fmt.Errorf("%w: bad user directory %q/%q", ErrInvalid, userID, assetType)
	}
	dir := r.UserDir(userID, assetType)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create user directory: %w", err)
	}
	return dir, nil
}

// Resolve maps a locator to an absolute path without touching the disk.
func (r *Resolver) Resolve(loc Locator) (string, error) {
	switch loc.Kind {
	case KindUserScoped:
		if err := loc.validateScoped(); err != nil {
			return "", err
		}
		return filepath.Join(r.UserDir(loc.UserID, loc.Type), loc.Filename), nil
	case KindLocalPath:
		return r.resolveLocal(loc.Path)
	case KindRemote:
		return "", fmt.Errorf("%w: remote reference %q has no local path", ErrInvalid, loc.URL)
	default:
		return "", fmt.Errorf("%w: empty reference", ErrInvalid)
	}
}

// ResolveExisting resolves and stats the locator. index identifies the entry
// in the caller's list for error messages; pass -1 when not applicable.
func (r *Resolver) ResolveExisting(loc Locator, index int) (string, error) {
	p, err := r.Resolve(loc)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &NotFoundError{Path: p, Index: index}
		}
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return "", &NotFoundError{Path: p, Index: index}
	}
	return p, nil
}

func (r *Resolver) resolveLocal(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalid)
	}
	p = filepath.FromSlash(strings.ReplaceAll(p, "\\", "/"))

	if filepath.IsAbs(p) {
		clean := filepath.Clean(p)
		if r.within(clean) || (r.allowExternal && !webPath(clean)) {
			return clean, nil
		}
	}

	// Web style paths ("/generated/u1/videos/a.mp4") are relative to the root.
	rel := strings.TrimLeft(filepath.ToSlash(p), "/")
	joined := filepath.Join(r.root, filepath.FromSlash(rel))
	if !r.within(joined) {
		return "", fmt.Errorf("%w: %q escapes the public root", ErrInvalid, p)
	}
	return joined, nil
}

// OwnedBy reports whether loc resolves into userID's directory for the
// asset type.
func (r *Resolver) OwnedBy(loc Locator, userID, assetType string) (bool, error) {
	p, err := r.Resolve(loc)
	if err != nil {
		return false, err
	}
	if !safeSegment(userID) {
		return false, nil
	}
	return isWithin(r.UserDir(userID, assetType), p), nil
}

// Public reports whether loc resolves inside the public root, where every
// file belongs to some user.
func (r *Resolver) Public(loc Locator) (bool, error) {
	p, err := r.Resolve(loc)
	if err != nil {
		return false, err
	}
	return r.within(p), nil
}

// webPath reports whether p is a served URL path such as /generated/u1/...
func webPath(p string) bool {
	return strings.HasPrefix(filepath.ToSlash(p), "/"+generatedDir+"/")
}

func (r *Resolver) within(p string) bool {
	return isWithin(r.root, p)
}

func isWithin(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
