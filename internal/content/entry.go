package content

// Meta is the article metadata without body fields.
type Meta struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Tags        []string `json:"tags"`
	// Created and Updated are kept as written in the front matter.
	Created  string `json:"created"`
	Updated  string `json:"updated,omitempty"`
	Draft    bool   `json:"draft"`
	FilePath string `json:"-"`
}

// Entry is a fully loaded article.
type Entry struct {
	Meta
	// Content is the raw markdown body after the front matter.
	Content string `json:"content"`
	// HTML is the rendered body.
	HTML string `json:"html"`
}

// LastUpdated returns Updated, or Created when the article was never updated.
func (m Meta) LastUpdated() string {
	if m.Updated != "" {
		return m.Updated
	}
	return m.Created
}
