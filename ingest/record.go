package ingest

import "time"

// Metadata keys with cross-plugin meaning. The core enforces no reserved
// keys; MetaChangeType is honored by filesystem-style destinations.
const (
	MetaChangeType = "changeType"
	ChangeRemoved  = "removed"
)

// Record is the uniform item produced by every transformer and consumed
// by every destination.
//
// ID uniqueness is the source's responsibility; destinations do not
// deduplicate. Content may be text, raw bytes, or a structured value -
// destinations decide how to serialize. FetchedAt is stamped by the
// orchestrator when the source execution returns, so every record from
// one pipeline run carries identical fetch provenance.
type Record struct {
	ID        string         `json:"id"`
	Content   any            `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// IsRemoval reports whether the record marks previously-ingested content
// as removed at the source.
func (r *Record) IsRemoval() bool {
	if r.Metadata == nil {
		return false
	}
	v, ok := r.Metadata[MetaChangeType].(string)
	return ok && v == ChangeRemoved
}
