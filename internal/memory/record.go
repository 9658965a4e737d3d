// Package memory implements CRUD over memory records, embedding-text
// enrichment, composite embedding, and vector/graph write ordering with
// graph-pending reconciliation.
package memory

import (
	"encoding/json"
	"time"
)

// Type is the typed role of a memory record.
type Type string

const (
	TypeDecision Type = "decision"
	TypePattern  Type = "pattern"
	TypeError    Type = "error"
	TypeLearning Type = "learning"
	TypeDocs     Type = "docs"
	TypeContext  Type = "context"
)

// ValidTypes lists every recognised record type.
var ValidTypes = map[Type]bool{
	TypeDecision: true,
	TypePattern:  true,
	TypeError:    true,
	TypeLearning: true,
	TypeDocs:     true,
	TypeContext:  true,
}

// Relation is one edge from a record to another, as carried on the
// record payload; duplicates are collapsed.
type Relation struct {
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
}

// Record is the unit of storage in this system
type Record struct {
	ID              string         `json:"id"`
	Type            Type           `json:"type"`
	Content         string         `json:"content"`
	Context         string         `json:"context,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Solution        string         `json:"solution,omitempty"`
	Project         string         `json:"project,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Pinned          bool           `json:"pinned"`
	Resolved        bool           `json:"resolved"`
	AccessCount     int            `json:"access_count"`
	UsefulnessScore float64        `json:"usefulness_score"`
	Relations       []Relation     `json:"relations,omitempty"`
	Source          string         `json:"source,omitempty"`
	ContentHash     string         `json:"content_hash,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`

	// GraphPending marks a record whose graph mirror write failed or
	// timed out and is awaiting a reconciliation sweep
	GraphPending bool `json:"graph_pending,omitempty"`
}

// ContentPreview truncates content to at most 200 chars for the graph
// node projection.
func (r Record) ContentPreview() string {
	const maxLen = 200
	if len(r.Content) <= maxLen {
		return r.Content
	}
	return r.Content[:maxLen]
}

// AgeDays returns the age of the record in days as of now.
func (r Record) AgeDays(now time.Time) float64 {
	return now.Sub(r.CreatedAt).Hours() / 24
}

// marshalRelations JSON-encodes relations for storage as a single
// payload field, since the vector-store payload is the system of record
// and relations must round-trip through Get/List like every other
// field.
func marshalRelations(rels []Relation) string {
	if len(rels) == 0 {
		return ""
	}
	b, err := json.Marshal(rels)
	if err != nil {
		return ""
	}
	return string(b)
}

// unmarshalRelations reverses marshalRelations, tolerating an empty or
// malformed value (treated as no relations).
func unmarshalRelations(s string) []Relation {
	if s == "" {
		return nil
	}
	var rels []Relation
	if err := json.Unmarshal([]byte(s), &rels); err != nil {
		return nil
	}
	return rels
}

func dedupeRelations(rels []Relation) []Relation {
	seen := make(map[Relation]bool, len(rels))
	out := make([]Relation, 0, len(rels))
	for _, r := range rels {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
