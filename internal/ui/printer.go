package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/kbpulse/internal/activity"
	"github.com/Aman-CERP/kbpulse/internal/search"
)

// Printer writes human-readable lines. Safe for concurrent use.
type Printer struct {
	mu         sync.Mutex
	out        io.Writer
	styles     Styles
	heartbeats bool
}

// NewPrinter creates a printer from cfg.
func NewPrinter(cfg Config) *Printer {
	return &Printer{
		out:        cfg.Output,
		styles:     GetStyles(cfg.NoColor),
		heartbeats: cfg.Heartbeats,
	}
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, s)
}

// Header prints a title line.
func (p *Printer) Header(text string) {
	p.println(p.styles.Header.Render(text))
}

// Error prints err.
func (p *Printer) Error(err error) {
	p.println(p.styles.Error.Render("error: " + err.Error()))
}

// Record prints one activity payload, e.g.
//
//	SAVED   guides/setup  "Setup"  category=guides  at=2025-01-01
func (p *Printer) Record(r activity.Payload) {
	var b strings.Builder
	switch r.Type {
	case activity.KindDeleted:
		b.WriteString(p.styles.Deleted.Render("DELETED"))
	default:
		b.WriteString(p.styles.Saved.Render("SAVED  "))
	}
	b.WriteString(" ")
	b.WriteString(p.styles.Slug.Render(r.Slug))

	if m := r.Meta; m != nil {
		if m.Title != "" {
			fmt.Fprintf(&b, "  %q", m.Title)
		}
		if m.Category != "" {
			b.WriteString("  " + p.styles.Label.Render("category=") + m.Category)
		}
		if m.IsDraft {
			b.WriteString("  " + p.styles.Draft.Render("draft"))
		}
	}
	if r.Timestamp != "" {
		b.WriteString("  " + p.styles.Label.Render("at=") + r.Timestamp)
	}
	if r.SearchGeneratedAt != nil {
		b.WriteString("  " + p.styles.Dim.Render(fmt.Sprintf("gen=%d", *r.SearchGeneratedAt)))
	}
	p.println(b.String())
}

// Heartbeat prints a heartbeat comment when enabled.
func (p *Printer) Heartbeat(comment string) {
	if !p.heartbeats {
		return
	}
	p.println(p.styles.Dim.Render(": " + comment))
}

// Taxonomy prints the category tree with counts.
func (p *Printer) Taxonomy(docs int, generatedAt int64, cats []search.Category) {
	p.Header(fmt.Sprintf("%d documents, generated %s", docs,
		time.UnixMilli(generatedAt).UTC().Format(time.RFC3339)))
	for _, c := range cats {
		p.println(fmt.Sprintf("%s %s", c.Name, p.styles.Count.Render(fmt.Sprintf("(%d)", c.Count))))
		for _, sub := range c.Subcategories {
			p.println(fmt.Sprintf("  %s %s", sub.Name, p.styles.Count.Render(fmt.Sprintf("(%d)", sub.Count))))
		}
		if len(c.Tags) > 0 {
			names := make([]string, len(c.Tags))
			for i, t := range c.Tags {
				names[i] = fmt.Sprintf("%s:%d", t.Name, t.Count)
			}
			p.println("  " + p.styles.Label.Render("tags ") + strings.Join(names, " "))
		}
	}
}

// Hits prints search results.
func (p *Printer) Hits(res *search.Results) {
	p.Header(fmt.Sprintf("%d of %d hits for %q", len(res.Hits), res.Total, res.Query))
	for i, h := range res.Hits {
		p.println(fmt.Sprintf("%2d. %s  %s  %s", i+1,
			p.styles.Slug.Render(h.Slug), h.Title,
			p.styles.Count.Render(fmt.Sprintf("%.3f", h.Score))))
		if h.Excerpt != "" {
			p.println("    " + p.styles.Dim.Render(h.Excerpt))
		}
	}
}

// Success prints a "✓ msg" status line.
func (p *Printer) Success(msg string) {
	p.println(p.styles.Saved.Render("✓") + " " + msg)
}

// Warning prints a "! msg" status line.
func (p *Printer) Warning(msg string) {
	p.println(p.styles.Draft.Render("!") + " " + msg)
}

// Info prints an indented secondary line.
func (p *Printer) Info(msg string) {
	p.println("  " + p.styles.Label.Render(msg))
}

// Code prints content indented by two spaces, framed by blank lines.
func (p *Printer) Code(content string) {
	var b strings.Builder
	b.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		b.WriteString("  " + line + "\n")
	}
	p.println(b.String())
}
