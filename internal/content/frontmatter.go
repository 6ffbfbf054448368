package content

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// frontMatter mirrors the accepted YAML keys. Loosely typed fields are
// coerced in normalize.
type frontMatter struct {
	Title       any  `yaml:"title"`
	Summary     any  `yaml:"summary"`
	Category    any  `yaml:"category"`
	Subcategory any  `yaml:"subcategory"`
	Tags        any  `yaml:"tags"`
	Created     any  `yaml:"created"`
	Updated     any  `yaml:"updated"`
	Draft       bool `yaml:"draft"`
}

var delimiter = []byte("---")

// splitFrontMatter separates a leading "---" block from the body. A file
// without one has empty front matter.
func splitFrontMatter(data []byte) (head, body []byte) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !bytes.HasPrefix(data, delimiter) {
		return nil, data
	}
	rest := data[len(delimiter):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, data
	}
	rest = rest[nl+1:]

	for offset := 0; offset <= len(rest); {
		line := rest[offset:]
		end := bytes.IndexByte(line, '\n')
		if end >= 0 {
			line = line[:end]
		}
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), delimiter) {
			head = rest[:offset]
			if end < 0 {
				return head, nil
			}
			return head, rest[offset+end+1:]
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return nil, data
}

// parseFrontMatter decodes and validates the YAML header. title and created
// are required.
func parseFrontMatter(head []byte) (frontMatter, error) {
	var fm frontMatter
	if len(bytes.TrimSpace(head)) > 0 {
		if err := yaml.Unmarshal(head, &fm); err != nil {
			return fm, fmt.Errorf("invalid front matter: %w", err)
		}
	}
	if strings.TrimSpace(scalar(fm.Title)) == "" {
		return fm, fmt.Errorf(`missing required "title" in front matter`)
	}
	if scalar(fm.Created) == "" {
		return fm, fmt.Errorf(`missing required "created" (ISO date) in front matter`)
	}
	return fm, nil
}

// scalar renders a decoded YAML scalar as trimmed text. YAML timestamps
// become RFC 3339, or a bare date when they carry no time of day.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.UTC().Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// coerceTags accepts a YAML list or a comma-separated string. Non-string
// list items and blanks are dropped.
func coerceTags(v any) []string {
	tags := []string{}
	switch t := v.(type) {
	case string:
		for _, tag := range strings.Split(t, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					tags = append(tags, s)
				}
			}
		}
	}
	return tags
}
