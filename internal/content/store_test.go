package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

func writeArticle(t *testing.T, root, rel, data string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func newFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeArticle(t, root, "guides/setup/install.md", `---
title: Install
summary: "  How to install  "
tags: [cli, " setup ", 3]
created: 2024-01-02
updated: "2024-02-03T10:00:00.000Z"
---
# Install

Run **make**.
`)
	writeArticle(t, root, "notes.md", `---
title: Notes
category: Misc
tags: "a, b,,c"
created: "2024-01-01"
draft: true
---
Body.
`)
	writeArticle(t, root, ".hidden/secret.md", "---\ntitle: x\ncreated: y\n---\n")
	writeArticle(t, root, "guides/readme.txt", "not markdown")
	return root
}

func TestFileStore_Entries_ParsesFrontMatterAndRenders(t *testing.T) {
	// Given: a content tree with a nested article
	store := NewFileStore(newFixture(t), ".md")

	// When: loading published entries
	entries, err := store.Entries(context.Background(), false)

	// Then: only the published markdown article is returned, fully parsed
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "guides/setup/install", e.Slug)
	assert.Equal(t, "Install", e.Title)
	assert.Equal(t, "How to install", e.Summary)
	assert.Equal(t, "guides", e.Category, "defaults to first segment")
	assert.Equal(t, "setup", e.Subcategory, "defaults to second segment")
	assert.Equal(t, []string{"cli", "setup"}, e.Tags)
	assert.Equal(t, "2024-01-02", e.Created)
	assert.Equal(t, "2024-02-03T10:00:00.000Z", e.Updated)
	assert.Contains(t, e.HTML, "<strong>make</strong>")
	assert.Contains(t, e.Content, "Run **make**.")
}

func TestFileStore_ListMetadata_IncludesDrafts(t *testing.T) {
	store := NewFileStore(newFixture(t), ".md")

	metas, err := store.ListMetadata(context.Background())

	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "guides/setup/install", metas[0].Slug)
	assert.Equal(t, "notes", metas[1].Slug)
	assert.True(t, metas[1].Draft)
	assert.Equal(t, "Misc", metas[1].Category)
	assert.Empty(t, metas[1].Subcategory)
	assert.Equal(t, []string{"a", "b", "c"}, metas[1].Tags)
	assert.Equal(t, "2024-01-01", metas[1].LastUpdated())
}

func TestFileStore_Entries_MissingRoot(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent"), ".md")

	entries, err := store.Entries(context.Background(), true)

	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_Entries_InvalidFrontMatterFails(t *testing.T) {
	root := t.TempDir()
	writeArticle(t, root, "bad.md", "---\nsummary: no title\ncreated: 2024-01-01\n---\nx\n")

	_, err := NewFileStore(root, ".md").Entries(context.Background(), true)

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeFrontMatterInvalid, kberrors.GetCode(err))
}

func TestFileStore_Get(t *testing.T) {
	store := NewFileStore(newFixture(t), ".md")
	ctx := context.Background()

	e, err := store.Get(ctx, "/guides/setup/install")
	require.NoError(t, err)
	assert.Equal(t, "Install", e.Title)

	_, err = store.Get(ctx, "guides/missing")
	assert.Equal(t, kberrors.ErrCodeContentNotFound, kberrors.GetCode(err))

	_, err = store.Get(ctx, "../etc/passwd")
	assert.Equal(t, kberrors.ErrCodeInvalidSlug, kberrors.GetCode(err))
}

func TestFileStore_Entries_CancelledContext(t *testing.T) {
	store := NewFileStore(newFixture(t), ".md")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Entries(ctx, true)

	assert.ErrorIs(t, err, context.Canceled)
}
