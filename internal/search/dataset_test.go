package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/kbpulse/internal/content"
)

func fullEntry(slug, title, body string, tags ...string) content.Entry {
	e := entry(slug, "Guides", "Café Tips", tags...)
	e.Title = title
	e.Summary = "Summary of " + title
	e.Content = body
	e.HTML = "<p>" + body + "</p>"
	return e
}

func TestBuild_DocumentsSortedAndSlugged(t *testing.T) {
	// Given: entries out of slug order
	entries := []content.Entry{
		fullEntry("guides/zeta", "Zeta", "z body", "Dev Ops"),
		fullEntry("guides/alpha", "Alpha", "**a** body"),
	}

	// When: building
	ds := Build(entries, BuildOptions{})

	// Then: documents are sorted and carry filter slugs
	require.Len(t, ds.Documents, 2)
	assert.Equal(t, "guides/alpha", ds.Documents[0].Slug)
	assert.Equal(t, "guides/alpha", ds.Documents[0].ID)
	assert.Equal(t, "a body", ds.Documents[0].Content)
	assert.Equal(t, "guides", ds.Documents[1].CategorySlug)
	assert.Equal(t, "cafe-tips", ds.Documents[1].SubcategorySlug)
	assert.Equal(t, []string{"dev-ops"}, ds.Documents[1].TagSlugs)
	assert.Len(t, ds.Taxonomy, 1)

	doc, ok := ds.Document("guides/zeta")
	require.True(t, ok)
	assert.Equal(t, "Zeta", doc.Title)
}

func TestBuild_EmptyInput(t *testing.T) {
	ds := Build(nil, BuildOptions{})

	assert.Empty(t, ds.Documents)
	assert.NotNil(t, ds.Documents)
	assert.Empty(t, ds.Taxonomy)
}

func TestDataset_Query_RanksTitleMatches(t *testing.T) {
	// Given: one article about kubernetes in the title, one in the body
	ds := Build([]content.Entry{
		fullEntry("guides/k8s", "Kubernetes basics", "pods and nodes"),
		fullEntry("guides/other", "Other topic", "mentions kubernetes once"),
		fullEntry("guides/none", "Unrelated", "nothing here"),
	}, BuildOptions{})

	// When: querying
	matches, total, err := ds.Query(context.Background(), "kubernetes", 10)

	// Then: both matching articles come back, title match first
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	require.Len(t, matches, 2)
	assert.Equal(t, "guides/k8s", matches[0].Slug)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestDataset_Query_AfterClose(t *testing.T) {
	ds := Build([]content.Entry{fullEntry("a/b", "T", "x")}, BuildOptions{})
	require.NoError(t, ds.Close())

	_, _, err := ds.Query(context.Background(), "x", 5)

	assert.Error(t, err)
}
