package activity

import (
	"context"
	"time"

	"github.com/Aman-CERP/kbpulse/internal/content"
	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
	"github.com/Aman-CERP/kbpulse/internal/watcher"
)

// timestampLayout is ISO-8601 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// MetadataSource lists article metadata, drafts included.
type MetadataSource interface {
	ListMetadata(ctx context.Context) ([]content.Meta, error)
}

// GenerationFunc reports the current search dataset generation, if any.
type GenerationFunc func() (int64, bool)

// Normalizer resolves a signal against the store's current state.
type Normalizer struct {
	source     MetadataSource
	generation GenerationFunc
	now        func() time.Time
}

// NewNormalizer creates a normalizer. generation may be nil.
func NewNormalizer(source MetadataSource, generation GenerationFunc, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{source: source, generation: generation, now: now}
}

// Normalize builds the record for sig. The metadata found now decides the
// kind: an updated signal for a vanished slug becomes a delete, and a
// delete signal for a slug that exists again becomes a save.
func (n *Normalizer) Normalize(ctx context.Context, sig watcher.Signal) (Record, error) {
	metas, err := n.source.ListMetadata(ctx)
	if err != nil {
		return Record{}, kberrors.Wrap(kberrors.ErrCodeContentRead, err).
			WithDetail("slug", sig.Slug)
	}

	var rec Record
	if m, ok := find(metas, sig.Slug); ok {
		rec = Record{
			Kind:      KindSaved,
			Slug:      m.Slug,
			Timestamp: m.LastUpdated(),
			Title:     m.Title,
			Category:  m.Category,
			UpdatedAt: m.LastUpdated(),
			CreatedAt: m.Created,
			IsDraft:   m.Draft,
		}
	} else {
		rec = Record{
			Kind:      KindDeleted,
			Slug:      sig.Slug,
			Timestamp: n.now().UTC().Format(timestampLayout),
			Title:     content.LastSegment(sig.Slug),
		}
	}

	if n.generation != nil {
		if gen, ok := n.generation(); ok {
			rec.SearchGeneratedAt = &gen
		}
	}
	return rec, nil
}

func find(metas []content.Meta, slug string) (content.Meta, bool) {
	for _, m := range metas {
		if m.Slug == slug {
			return m, true
		}
	}
	return content.Meta{}, false
}
