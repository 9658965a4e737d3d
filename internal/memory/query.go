package memory

import (
	"context"
	"sort"
	"strconv"
	"time"

	"agentmemory/internal/apierr"
	"agentmemory/internal/store/vector"
)

// Get fetches a single record by id. The vector store is the system of
// record for payload fields; Get scrolls the collection looking for a
// payload-id match since the vector store contract has no direct
// get-by-id operation, only Scroll and HybridSearch.
func (m *Manager) Get(ctx context.Context, id string) (Record, error) {
	const pageSize = 200
	cursor := ""
	for {
		points, next, err := m.store.Vector.Scroll(ctx, vector.Filter{}, cursor, pageSize)
		if err != nil {
			return Record{}, apierr.DependencyUnavailable(err, "scroll for get %s", id)
		}
		for _, p := range points {
			if p.ID == id {
				return RecordFromPayload(p.ID, p.Payload), nil
			}
		}
		if next == "" || next == cursor {
			return Record{}, apierr.NotFound("no record with id %q", id)
		}
		cursor = next
	}
}

// List returns records in creation order, applying limit/offset after a
// full scroll-and-sort. Acceptable for the corpus sizes this service
// targets; a deployment with a very large collection would push paging
// down into the backend instead.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]Record, error) {
	const pageSize = 200
	var all []Record
	cursor := ""
	for {
		points, next, err := m.store.Vector.Scroll(ctx, vector.Filter{}, cursor, pageSize)
		if err != nil {
			return nil, apierr.DependencyUnavailable(err, "scroll for list")
		}
		for _, p := range points {
			all = append(all, RecordFromPayload(p.ID, p.Payload))
		}
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []Record{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// RecordFromPayload reconstructs a Record from the payload map written by
// recordPayload. Backends that round-trip payloads through JSON/protobuf
// (qdrant, pgvector) hand back []any instead of []string and numeric
// types as float64; this defensively normalizes both shapes.
func RecordFromPayload(id string, payload map[string]any) Record {
	r := Record{ID: id}
	if v, ok := payload["type"].(string); ok {
		r.Type = Type(v)
	}
	r.Content, _ = payload["content"].(string)
	r.Context, _ = payload["context"].(string)
	r.ErrorMessage, _ = payload["error_message"].(string)
	r.Solution, _ = payload["solution"].(string)
	r.Project, _ = payload["project"].(string)
	r.Tags = toStringSlice(payload["tags"])
	r.CreatedAt = toTime(payload["created_at"])
	r.UpdatedAt = toTime(payload["updated_at"])
	r.Pinned = toBool(payload["pinned"])
	r.Resolved = toBool(payload["resolved"])
	r.AccessCount = toInt(payload["access_count"])
	r.UsefulnessScore = toFloat(payload["usefulness_score"])
	r.Source, _ = payload["source"].(string)
	r.ContentHash, _ = payload["content_hash"].(string)
	if s, ok := payload["relations"].(string); ok {
		r.Relations = unmarshalRelations(s)
	}
	return r
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
