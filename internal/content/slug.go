package content

import (
	"path/filepath"
	"regexp"
	"strings"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

var segmentPattern = regexp.MustCompile(`(?i)^[a-z0-9](?:[a-z0-9_-]*[a-z0-9])?$`)

// NormalizeSlug validates a user-supplied slug and returns its canonical form.
// Backslashes become slashes and empty segments are dropped. Parent segments
// and characters outside [A-Za-z0-9_-] are rejected with ERR_403.
func NormalizeSlug(input string) (string, error) {
	var segments []string
	for _, s := range strings.Split(strings.ReplaceAll(input, `\`, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return "", kberrors.New(kberrors.ErrCodeInvalidSlug, "article slug cannot be empty", nil)
	}
	for _, s := range segments {
		if s == ".." {
			return "", kberrors.New(kberrors.ErrCodeInvalidSlug, "article slug must not contain parent directory segments", nil).
				WithDetail("slug", input)
		}
		if !segmentPattern.MatchString(s) {
			return "", kberrors.New(kberrors.ErrCodeInvalidSlug,
				"slug segments may only contain letters, digits, hyphens or underscores and must start and end with a letter or digit", nil).
				WithDetail("slug", input)
		}
	}
	return strings.Join(segments, "/"), nil
}

// SlugFromPath maps a file path under root to its slug. The extension match
// is case-insensitive. ok is false for paths outside root, for hidden
// files or directories, and for files without ext.
func SlugFromPath(root, path, ext string) (slug string, ok bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if len(rel) <= len(ext) || !strings.EqualFold(rel[len(rel)-len(ext):], ext) {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return rel[:len(rel)-len(ext)], true
}

// LastSegment returns the final path segment of slug.
func LastSegment(slug string) string {
	if i := strings.LastIndex(slug, "/"); i >= 0 {
		return slug[i+1:]
	}
	return slug
}
