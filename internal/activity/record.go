package activity

import (
	"encoding/json"
	"fmt"

	"github.com/Aman-CERP/kbpulse/internal/stream"
)

// EventName is the SSE event name carrying records.
const EventName = "article-update"

// Kind is the record type as sent on the wire.
type Kind string

const (
	KindSaved   Kind = "article:saved"
	KindDeleted Kind = "article:deleted"
)

// Record is a canonical activity notification. Records are never mutated
// after the normalizer creates them.
type Record struct {
	Kind      Kind
	Slug      string
	Timestamp string

	Title     string
	Category  string
	UpdatedAt string
	CreatedAt string
	IsDraft   bool

	// SearchGeneratedAt is the search dataset generation current when the
	// record was created, if one was installed.
	SearchGeneratedAt *int64
}

// Signature identifies a record for adjacent-duplicate suppression.
func (r Record) Signature() string {
	return fmt.Sprintf("%s:%s:%s", r.Kind, r.Slug, r.Timestamp)
}

// Payload is the JSON body of an article-update event.
type Payload struct {
	Type              Kind         `json:"type"`
	Slug              string       `json:"slug"`
	Timestamp         string       `json:"timestamp"`
	Meta              *PayloadMeta `json:"meta,omitempty"`
	SearchGeneratedAt *int64       `json:"searchGeneratedAt,omitempty"`
}

// PayloadMeta is present only for saved records.
type PayloadMeta struct {
	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	IsDraft   bool   `json:"isDraft"`
}

// Payload converts r to its wire form.
func (r Record) Payload() Payload {
	p := Payload{
		Type:              r.Kind,
		Slug:              r.Slug,
		Timestamp:         r.Timestamp,
		SearchGeneratedAt: r.SearchGeneratedAt,
	}
	if r.Kind == KindSaved {
		p.Meta = &PayloadMeta{
			Title:     r.Title,
			Category:  r.Category,
			UpdatedAt: r.UpdatedAt,
			CreatedAt: r.CreatedAt,
			IsDraft:   r.IsDraft,
		}
	}
	return p
}

// MarshalJSON encodes the wire payload.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

// Event renders r as a stream event.
func (r Record) Event() (stream.Event, error) {
	data, err := json.Marshal(r.Payload())
	if err != nil {
		return stream.Event{}, err
	}
	return stream.Event{Name: EventName, Data: data}, nil
}
