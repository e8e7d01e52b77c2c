package weffo

import (
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// Resolver maps a document reference made by a running transform, such as
// document($prefs), to a Source. base is the system ID the reference is
// relative to.
//
// Returning a nil Source and a nil error declines the reference; the
// pipeline's fallback resolver is consulted instead.
type Resolver interface {
	Resolve(href, base string) (Source, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(href, base string) (Source, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(href, base string) (Source, error) {
	return f(href, base)
}

// FSResolver resolves references inside an fs.FS with strict path
// validation: references must be relative, slash separated and must not
// escape the filesystem root.
type FSResolver struct {
	fsys fs.FS
}

// NewFSResolver creates a resolver backed by fsys.
func NewFSResolver(fsys fs.FS) *FSResolver {
	return &FSResolver{fsys: fsys}
}

// Resolve implements Resolver.
func (r *FSResolver) Resolve(href, base string) (Source, error) {
	if r == nil || r.fsys == nil {
		return nil, fmt.Errorf("no filesystem configured")
	}
	systemID, err := resolveSystemID(base, href)
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat(r.fsys, systemID); err != nil {
		return nil, err
	}
	return FSSource(r.fsys, systemID), nil
}

func resolveSystemID(baseSystemID, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("document reference is empty")
	}
	if strings.Contains(location, "\\") {
		return "", fmt.Errorf("document reference contains backslash: %q", location)
	}
	if strings.HasPrefix(location, "/") {
		return "", fmt.Errorf("document reference must be relative: %q", location)
	}
	if strings.Contains(baseSystemID, "\\") {
		return "", fmt.Errorf("base system ID contains backslash: %q", baseSystemID)
	}
	if slices.Contains(strings.Split(location, "/"), "") {
		return "", fmt.Errorf("invalid document reference segment: %q", location)
	}
	joined := path.Clean(location)
	if dir := baseDir(baseSystemID); dir != "" {
		joined = path.Clean(dir + "/" + location)
	}
	if joined == "." {
		return "", fmt.Errorf("document reference is empty")
	}
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", fmt.Errorf("document reference escapes root: %q", location)
	}
	return joined, nil
}

func baseDir(systemID string) string {
	idx := strings.LastIndex(systemID, "/")
	if idx == -1 {
		return ""
	}
	return systemID[:idx]
}

// fileResolver is the default fallback: references are operating system
// paths or file: URLs, relative ones resolved against the directory of base.
type fileResolver struct{}

func (fileResolver) Resolve(href, base string) (Source, error) {
	p, err := filePath(href)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(p) && base != "" {
		bp, err := filePath(base)
		if err == nil {
			p = filepath.Join(filepath.Dir(bp), p)
		}
	}
	return FileSource(p), nil
}

func filePath(ref string) (string, error) {
	if !strings.Contains(ref, ":") || filepath.VolumeName(ref) != "" {
		return filepath.FromSlash(ref), nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse document reference %q: %w", ref, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported document reference scheme %q", u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("remote file reference %q", ref)
	}
	if u.Opaque != "" {
		return filepath.FromSlash(u.Opaque), nil
	}
	return filepath.FromSlash(u.Path), nil
}
