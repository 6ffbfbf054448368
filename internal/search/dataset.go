package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/kbpulse/internal/content"
)

// DefaultExcerptWords is the excerpt length used when BuildOptions leaves it unset.
const DefaultExcerptWords = 40

// BuildOptions configures Build.
type BuildOptions struct {
	ExcerptWords int
}

// Dataset is the payload served to search clients. The full-text index is
// built on first query and never serialized.
type Dataset struct {
	Documents []Document `json:"documents"`
	Taxonomy  []Category `json:"taxonomy"`

	bySlug    map[string]int
	indexOnce sync.Once
	index     bleve.Index
	indexErr  error
}

// Build transforms entries into a dataset. Documents are ordered by slug.
func Build(entries []content.Entry, opts BuildOptions) *Dataset {
	if opts.ExcerptWords <= 0 {
		opts.ExcerptWords = DefaultExcerptWords
	}

	docs := make([]Document, len(entries))
	for i, e := range entries {
		docs[i] = toDocument(e, opts.ExcerptWords)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Slug < docs[j].Slug })

	bySlug := make(map[string]int, len(docs))
	for i, d := range docs {
		bySlug[d.Slug] = i
	}

	return &Dataset{
		Documents: docs,
		Taxonomy:  BuildTaxonomy(entries),
		bySlug:    bySlug,
	}
}

// Document returns the document for slug.
func (d *Dataset) Document(slug string) (Document, bool) {
	i, ok := d.bySlug[slug]
	if !ok {
		return Document{}, false
	}
	return d.Documents[i], true
}

// indexDoc is the subset of Document fed to bleve.
type indexDoc struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Content  string   `json:"content"`
}

var fieldBoosts = []struct {
	field string
	boost float64
}{
	{"title", 3},
	{"tags", 2},
	{"summary", 1.5},
	{"category", 1},
	{"content", 1},
}

func (d *Dataset) buildIndex() (bleve.Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	batch := idx.NewBatch()
	for _, doc := range d.Documents {
		err := batch.Index(doc.ID, indexDoc{
			Title:    doc.Title,
			Summary:  doc.Summary,
			Category: doc.Category,
			Tags:     doc.Tags,
			Content:  doc.Content,
		})
		if err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("execute batch: %w", err)
	}
	return idx, nil
}

// Match is a raw full-text hit.
type Match struct {
	Slug  string
	Score float64
}

// Query runs a boosted match query over title, tags, summary, category and
// content. The index is built on first use.
func (d *Dataset) Query(ctx context.Context, text string, limit int) ([]Match, uint64, error) {
	d.indexOnce.Do(func() {
		d.index, d.indexErr = d.buildIndex()
	})
	if d.indexErr != nil {
		return nil, 0, d.indexErr
	}

	queries := make([]query.Query, 0, len(fieldBoosts))
	for _, fb := range fieldBoosts {
		q := bleve.NewMatchQuery(text)
		q.SetField(fb.field)
		q.SetBoost(fb.boost)
		queries = append(queries, q)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), limit, 0, false)
	res, err := d.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		matches = append(matches, Match{Slug: hit.ID, Score: hit.Score})
	}
	return matches, res.Total, nil
}

// Close releases the full-text index if one was built. Later queries fail.
func (d *Dataset) Close() error {
	d.indexOnce.Do(func() { d.indexErr = fmt.Errorf("dataset closed") })
	if d.index != nil {
		return d.index.Close()
	}
	return nil
}
