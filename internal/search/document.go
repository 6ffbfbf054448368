package search

import "github.com/Aman-CERP/kbpulse/internal/content"

// Document is the client-side search record for one article.
type Document struct {
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	Summary         string   `json:"summary,omitempty"`
	Category        string   `json:"category"`
	CategorySlug    string   `json:"categorySlug"`
	Subcategory     string   `json:"subcategory,omitempty"`
	SubcategorySlug string   `json:"subcategorySlug,omitempty"`
	Tags            []string `json:"tags"`
	TagSlugs        []string `json:"tagSlugs"`
	Excerpt         string   `json:"excerpt"`
	Content         string   `json:"content"`
}

func toDocument(e content.Entry, excerptWords int) Document {
	doc := Document{
		ID:           e.Slug,
		Slug:         e.Slug,
		Title:        e.Title,
		Summary:      e.Summary,
		Category:     e.Category,
		CategorySlug: ToFilterSlug(e.Category),
		Subcategory:  e.Subcategory,
		Tags:         make([]string, len(e.Tags)),
		TagSlugs:     make([]string, len(e.Tags)),
		Excerpt:      createExcerpt(e.HTML, excerptWords),
		Content:      stripMarkdown(e.Content),
	}
	if e.Subcategory != "" {
		doc.SubcategorySlug = ToFilterSlug(e.Subcategory)
	}
	copy(doc.Tags, e.Tags)
	for i, tag := range e.Tags {
		doc.TagSlugs[i] = ToFilterSlug(tag)
	}
	return doc
}
