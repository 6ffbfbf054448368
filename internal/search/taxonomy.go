package search

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Aman-CERP/kbpulse/internal/content"
)

// Tag is a taxonomy leaf. Count is the number of occurrences.
type Tag struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// Subcategory groups articles inside a category.
type Subcategory struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
	Tags  []Tag  `json:"tags"`
}

// Category is a top-level taxonomy node.
type Category struct {
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	Count         int           `json:"count"`
	Tags          []Tag         `json:"tags"`
	Subcategories []Subcategory `json:"subcategories"`
}

type tagSet struct {
	order []string
	tags  map[string]*Tag
}

func newTagSet() *tagSet { return &tagSet{tags: map[string]*Tag{}} }

func (s *tagSet) add(name string) {
	slug := ToFilterSlug(name)
	if t, ok := s.tags[slug]; ok {
		t.Count++
		return
	}
	s.tags[slug] = &Tag{Name: name, Slug: slug, Count: 1}
	s.order = append(s.order, slug)
}

type subAcc struct {
	sub  Subcategory
	tags *tagSet
}

type catAcc struct {
	cat   Category
	tags  *tagSet
	order []string
	subs  map[string]*subAcc
}

// BuildTaxonomy groups entries into category -> subcategory -> tag. Nodes are
// keyed by filter slug, so the first spelling seen names the node.
// Categories and subcategories sort by name, tags by count descending then
// name.
func BuildTaxonomy(entries []content.Entry) []Category {
	col := collate.New(language.Und)
	byName := func(a, b string) bool { return col.CompareString(a, b) < 0 }

	var order []string
	cats := map[string]*catAcc{}

	for _, e := range entries {
		name := e.Category
		if name == "" {
			name = Uncategorized
		}
		slug := ToFilterSlug(name)
		c, ok := cats[slug]
		if !ok {
			c = &catAcc{cat: Category{Name: name, Slug: slug}, tags: newTagSet(), subs: map[string]*subAcc{}}
			cats[slug] = c
			order = append(order, slug)
		}
		c.cat.Count++
		for _, tag := range e.Tags {
			c.tags.add(tag)
		}

		if e.Subcategory == "" {
			continue
		}
		subSlug := ToFilterSlug(e.Subcategory)
		s, ok := c.subs[subSlug]
		if !ok {
			s = &subAcc{sub: Subcategory{Name: e.Subcategory, Slug: subSlug}, tags: newTagSet()}
			c.subs[subSlug] = s
			c.order = append(c.order, subSlug)
		}
		s.sub.Count++
		for _, tag := range e.Tags {
			s.tags.add(tag)
		}
	}

	sortTags := func(set *tagSet) []Tag {
		tags := make([]Tag, 0, len(set.order))
		for _, slug := range set.order {
			tags = append(tags, *set.tags[slug])
		}
		sort.SliceStable(tags, func(i, j int) bool {
			if tags[i].Count != tags[j].Count {
				return tags[i].Count > tags[j].Count
			}
			return byName(tags[i].Name, tags[j].Name)
		})
		return tags
	}

	out := make([]Category, 0, len(order))
	for _, slug := range order {
		c := cats[slug]
		cat := c.cat
		cat.Tags = sortTags(c.tags)
		cat.Subcategories = make([]Subcategory, 0, len(c.order))
		for _, subSlug := range c.order {
			s := c.subs[subSlug]
			sub := s.sub
			sub.Tags = sortTags(s.tags)
			cat.Subcategories = append(cat.Subcategories, sub)
		}
		sort.SliceStable(cat.Subcategories, func(i, j int) bool {
			return byName(cat.Subcategories[i].Name, cat.Subcategories[j].Name)
		})
		out = append(out, cat)
	}
	sort.SliceStable(out, func(i, j int) bool { return byName(out[i].Name, out[j].Name) })
	return out
}
