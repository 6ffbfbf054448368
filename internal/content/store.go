package content

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/sync/errgroup"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

// Store is the read side of the knowledge base.
type Store interface {
	// Entries returns every article, optionally including drafts.
	Entries(ctx context.Context, includeDrafts bool) ([]Entry, error)
	// ListMetadata returns metadata for every article, drafts included.
	ListMetadata(ctx context.Context) ([]Meta, error)
	// Get returns the article for slug, or ERR_201 when it does not exist.
	Get(ctx context.Context, slug string) (*Entry, error)
}

// FileStore implements Store over a directory of markdown files.
type FileStore struct {
	root     string
	ext      string
	md       goldmark.Markdown
	parallel int
	logger   *slog.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *FileStore) { s.logger = l }
}

// WithParallelism bounds concurrent file parsing. Defaults to runtime.NumCPU().
func WithParallelism(n int) Option {
	return func(s *FileStore) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// NewFileStore creates a store rooted at root. ext defaults to ".md".
func NewFileStore(root, ext string, opts ...Option) *FileStore {
	if ext == "" {
		ext = ".md"
	}
	s := &FileStore{
		root: filepath.Clean(root),
		ext:  ext,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		parallel: runtime.NumCPU(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the content directory.
func (s *FileStore) Root() string { return s.root }

// Extension returns the article file extension.
func (s *FileStore) Extension() string { return s.ext }

// Entries loads and renders every article. A missing root yields no entries.
// Any unreadable or malformed article fails the whole call.
func (s *FileStore) Entries(ctx context.Context, includeDrafts bool) ([]Entry, error) {
	paths, err := s.walk(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := s.load(path)
			if err != nil {
				return err
			}
			entries[i] = *e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := entries[:0]
	for _, e := range entries {
		if includeDrafts || !e.Draft {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// ListMetadata returns metadata for all articles, drafts included.
func (s *FileStore) ListMetadata(ctx context.Context) ([]Meta, error) {
	entries, err := s.Entries(ctx, true)
	if err != nil {
		return nil, err
	}
	metas := make([]Meta, len(entries))
	for i, e := range entries {
		metas[i] = e.Meta
	}
	return metas, nil
}

// Get loads a single article by slug.
func (s *FileStore) Get(ctx context.Context, slug string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalized, err := NormalizeSlug(slug)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.root, filepath.FromSlash(normalized)+s.ext)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, kberrors.New(kberrors.ErrCodeContentNotFound, "article not found", err).
			WithDetail("slug", normalized)
	}
	return s.load(path)
}

// walk lists article files under the root, skipping hidden entries.
func (s *FileStore) walk(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := SlugFromPath(s.root, path, s.ext); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, kberrors.ContentError("failed to list content directory", err).
			WithDetail("root", s.root)
	}
	return paths, nil
}

// load reads, parses and renders one article file.
func (s *FileStore) load(path string) (*Entry, error) {
	slug, ok := SlugFromPath(s.root, path, s.ext)
	if !ok {
		return nil, kberrors.New(kberrors.ErrCodeContentNotFound, "path is not an article", nil).
			WithDetail("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kberrors.New(kberrors.ErrCodeContentNotFound, "article not found", err).
				WithDetail("slug", slug)
		}
		return nil, kberrors.ContentError("failed to read article", err).WithDetail("path", path)
	}

	head, body := splitFrontMatter(data)
	fm, err := parseFrontMatter(head)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeFrontMatterInvalid, err.Error(), err).
			WithDetail("path", path)
	}

	var buf bytes.Buffer
	if err := s.md.Convert(body, &buf); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeRenderFailed, "failed to render markdown", err).
			WithDetail("path", path)
	}

	segments := strings.Split(slug, "/")
	category := scalar(fm.Category)
	if category == "" {
		category = segments[0]
	}
	if category == "" {
		category = "uncategorized"
	}
	subcategory := scalar(fm.Subcategory)
	if subcategory == "" && len(segments) > 1 {
		subcategory = segments[1]
	}

	s.logger.Debug("article loaded", slog.String("slug", slug))

	return &Entry{
		Meta: Meta{
			Slug:        slug,
			Title:       scalar(fm.Title),
			Summary:     scalar(fm.Summary),
			Category:    category,
			Subcategory: subcategory,
			Tags:        coerceTags(fm.Tags),
			Created:     scalar(fm.Created),
			Updated:     scalar(fm.Updated),
			Draft:       fm.Draft,
			FilePath:    path,
		},
		Content: string(body),
		HTML:    buf.String(),
	}, nil
}
