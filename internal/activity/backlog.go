package activity

// DefaultBacklogSize is the number of records replayed to new connections.
const DefaultBacklogSize = 10

// Backlog keeps the most recent accepted records and suppresses a record
// whose signature equals the one accepted just before it.
//
// Backlog is not safe for concurrent use; Service serializes access.
type Backlog struct {
	size    int
	records []Record
	last    string
	hasLast bool
}

// NewBacklog creates a backlog holding at most size records.
func NewBacklog(size int) *Backlog {
	if size <= 0 {
		size = DefaultBacklogSize
	}
	return &Backlog{size: size, records: make([]Record, 0, size)}
}

// Accept appends r unless it duplicates the previous accepted record.
// It reports whether r was accepted.
func (b *Backlog) Accept(r Record) bool {
	sig := r.Signature()
	if b.hasLast && sig == b.last {
		return false
	}
	b.last, b.hasLast = sig, true

	if len(b.records) == b.size {
		copy(b.records, b.records[1:])
		b.records = b.records[:b.size-1]
	}
	b.records = append(b.records, r)
	return true
}

// Snapshot returns the records oldest first.
func (b *Backlog) Snapshot() []Record {
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// Len returns the number of retained records.
func (b *Backlog) Len() int { return len(b.records) }

// Reset clears the records and the last signature.
func (b *Backlog) Reset() {
	b.records = b.records[:0]
	b.last, b.hasLast = "", false
}
