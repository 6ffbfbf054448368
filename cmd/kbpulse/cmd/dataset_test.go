package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
	"github.com/Aman-CERP/kbpulse/internal/search"
)

func TestDatasetCmd_JSON(t *testing.T) {
	// Given: a project with two published articles
	dir := newProject(t)

	// When: building the dataset locally
	out, err := run(t, "--dir", dir, "dataset", "--json")
	require.NoError(t, err)

	// Then: both documents are present and the build is fresh
	var env datasetEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	require.NotNil(t, env.Data)
	require.Len(t, env.Data.Documents, 2)
	assert.Equal(t, "guides/setup", env.Data.Documents[0].Slug)
	assert.False(t, env.Cached)
	assert.Positive(t, env.GeneratedAt)
}

func TestDatasetCmd_TaxonomySummary(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, "--dir", dir, "dataset")

	require.NoError(t, err)
	assert.Contains(t, out, "2 documents, generated ")
	assert.Contains(t, out, "Guides (1)")
	assert.Contains(t, out, "tags cli:1")
}

func TestSearchCmd_LocalJSON(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, "--dir", dir, "search", "binary", "--json")
	require.NoError(t, err)

	var res search.Results
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "binary", res.Query)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "guides/setup", res.Hits[0].Slug)
}

func TestSearchCmd_Text(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, "--dir", dir, "search", "heartbeats")

	require.NoError(t, err)
	assert.Contains(t, out, "hits for \"heartbeats\"")
	assert.Contains(t, out, "notes/ideas")
}

func TestSearchCmd_BlankQuery(t *testing.T) {
	dir := newProject(t)

	_, err := run(t, "--dir", dir, "search", "   ")

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeQueryEmpty, kberrors.GetCode(err))
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	isolate(t)

	_, err := run(t, "search")

	assert.Error(t, err)
}
