package search

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum     = regexp.MustCompile(`[^a-z0-9]+`)
	htmlTag      = regexp.MustCompile(`<[^>]+>`)
	whitespace   = regexp.MustCompile(`\s+`)
	mdImage      = regexp.MustCompile(`!\[(.*?)\]\(.*?\)`)
	mdLink       = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	mdPunctation = regexp.MustCompile("[`*_~>#-]+")
)

// ellipsis is appended to truncated excerpts.
const ellipsis = "…"

// Uncategorized is the filter slug for values that fold to nothing.
const Uncategorized = "uncategorized"

// ToFilterSlug folds value into a URL and filter safe slug: trimmed,
// lowercased, diacritics removed, runs of anything but [a-z0-9] collapsed to
// "-" and leading or trailing dashes dropped. Empty results become
// "uncategorized".
func ToFilterSlug(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(value))
	}
	slug := strings.Trim(nonAlnum.ReplaceAllString(folded, "-"), "-")
	if slug == "" {
		return Uncategorized
	}
	return slug
}

// stripMarkdown reduces markdown to searchable plain text. Links and images
// keep their text.
func stripMarkdown(md string) string {
	md = mdImage.ReplaceAllString(md, "$1")
	md = mdLink.ReplaceAllString(md, "$1")
	md = mdPunctation.ReplaceAllString(md, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(md, " "))
}

func stripHTML(html string) string {
	text := htmlTag.ReplaceAllString(html, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// createExcerpt returns the first maxWords words of the rendered HTML's text.
func createExcerpt(html string, maxWords int) string {
	words := strings.Fields(stripHTML(html))
	if len(words) == 0 {
		return ""
	}
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + ellipsis
}
