package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/kbpulse/internal/content"
)

func entry(slug, category, subcategory string, tags ...string) content.Entry {
	return content.Entry{Meta: content.Meta{
		Slug:        slug,
		Title:       slug,
		Category:    category,
		Subcategory: subcategory,
		Tags:        tags,
		Created:     "2024-01-01",
	}}
}

func TestBuildTaxonomy_CountsAndOrder(t *testing.T) {
	// Given: articles across two categories with overlapping tags
	entries := []content.Entry{
		entry("ops/deploy", "Ops", "Deploy", "k8s", "ci"),
		entry("ops/monitor", "Ops", "Alerting", "k8s", "Grafana"),
		entry("ops/deploy2", "ops", "Deploy", "ci", "k8s"),
		entry("dev/intro", "Dev", "", "go"),
	}

	// When: building the taxonomy
	tax := BuildTaxonomy(entries)

	// Then: categories sort by name and count articles
	require.Len(t, tax, 2)
	assert.Equal(t, "Dev", tax[0].Name)
	assert.Equal(t, 1, tax[0].Count)
	assert.Empty(t, tax[0].Subcategories)

	ops := tax[1]
	assert.Equal(t, "Ops", ops.Name, "first spelling wins")
	assert.Equal(t, "ops", ops.Slug)
	assert.Equal(t, 3, ops.Count)

	// Then: tags count occurrences, sorted by count desc then name
	require.Len(t, ops.Tags, 3)
	assert.Equal(t, Tag{Name: "k8s", Slug: "k8s", Count: 3}, ops.Tags[0])
	assert.Equal(t, Tag{Name: "ci", Slug: "ci", Count: 2}, ops.Tags[1])
	assert.Equal(t, Tag{Name: "Grafana", Slug: "grafana", Count: 1}, ops.Tags[2])

	// Then: subcategories sort by name with their own counts
	require.Len(t, ops.Subcategories, 2)
	assert.Equal(t, "Alerting", ops.Subcategories[0].Name)
	assert.Equal(t, 1, ops.Subcategories[0].Count)
	assert.Equal(t, "Deploy", ops.Subcategories[1].Name)
	assert.Equal(t, 2, ops.Subcategories[1].Count)
	assert.Equal(t, "ci", ops.Subcategories[1].Tags[0].Name)
	assert.Equal(t, 2, ops.Subcategories[1].Tags[0].Count)
}

func TestBuildTaxonomy_TagTiesSortByName(t *testing.T) {
	tax := BuildTaxonomy([]content.Entry{entry("a", "A", "", "zeta", "alpha", "mid")})

	require.Len(t, tax, 1)
	names := []string{tax[0].Tags[0].Name, tax[0].Tags[1].Name, tax[0].Tags[2].Name}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestBuildTaxonomy_EmptyCategoryIsUncategorized(t *testing.T) {
	tax := BuildTaxonomy([]content.Entry{entry("x", "", "")})

	require.Len(t, tax, 1)
	assert.Equal(t, "uncategorized", tax[0].Slug)
}

func TestBuildTaxonomy_RepeatedTagCountsEachOccurrence(t *testing.T) {
	// Given: one article tagged a, a, b and another tagged b
	entries := []content.Entry{
		entry("one", "Guides", "", "a", "a", "b"),
		entry("two", "Guides", "", "b"),
	}

	// When: building the taxonomy
	tax := BuildTaxonomy(entries)

	// Then: both tags count 2 and the tie sorts by name
	require.Len(t, tax, 1)
	assert.Equal(t, []Tag{
		{Name: "a", Slug: "a", Count: 2},
		{Name: "b", Slug: "b", Count: 2},
	}, tax[0].Tags)
}
