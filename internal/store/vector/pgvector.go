package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgVectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
	metric     string
}

// NewPGVector opens the "memory_vectors" table (pgvector extension) and
// ensures it exists. The extension and table are created best-effort on
// first use.
func NewPGVector(ctx context.Context, pool *pgxpool.Pool, dimensions int, metric string) (Store, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memory_vectors (
  id TEXT PRIMARY KEY,
  vec %s,
  payload JSONB NOT NULL DEFAULT '{}'::jsonb
)`, vecType)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create memory_vectors table: %w", err)
	}
	return &pgVectorStore{pool: pool, dimensions: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (p *pgVectorStore) Upsert(ctx context.Context, points []Point) error {
	for _, pt := range points {
		payload, err := json.Marshal(pt.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", pt.ID, err)
		}
		_, err = p.pool.Exec(ctx, `
INSERT INTO memory_vectors(id, vec, payload) VALUES ($1, $2::vector, $3::jsonb)
ON CONFLICT (id) DO UPDATE SET vec = EXCLUDED.vec, payload = EXCLUDED.payload
`, pt.ID, toVectorLiteral(pt.Dense), payload)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", pt.ID, err)
		}
	}
	return nil
}

func (p *pgVectorStore) Delete(ctx context.Context, ids []string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM memory_vectors WHERE id = ANY($1)`, ids)
	return err
}

func (p *pgVectorStore) Scroll(ctx context.Context, filter Filter, cursor string, limit int) ([]Point, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `SELECT id, vec, payload FROM memory_vectors WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var points []Point
	var next string
	for rows.Next() {
		var id string
		var vecStr string
		var payload []byte
		if err := rows.Scan(&id, &vecStr, &payload); err != nil {
			return nil, "", err
		}
		var md map[string]any
		_ = json.Unmarshal(payload, &md)
		if matchesFilter(md, filter) {
			points = append(points, Point{ID: id, Dense: parseVectorLiteral(vecStr), Payload: md})
		}
		next = id
	}
	return points, next, rows.Err()
}

func matchesFilter(payload map[string]any, f Filter) bool {
	if f.Project != "" {
		if v, _ := payload["project"].(string); v != f.Project {
			return false
		}
	}
	if f.Type != "" {
		if v, _ := payload["type"].(string); v != f.Type {
			return false
		}
	}
	if f.Source != "" {
		if v, _ := payload["source"].(string); v != f.Source {
			return false
		}
	}
	return true
}

func (p *pgVectorStore) HybridSearch(ctx context.Context, dense []float32, sparse *SparseVector, filter Filter, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	vecLit := toVectorLiteral(dense)
	op := "<=>"
	scoreExpr := "1 - (vec <=> $1::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op = "<->"
		scoreExpr = "-(vec <-> $1::vector)"
	case "ip", "dot":
		op = "<#>"
		scoreExpr = "-(vec <#> $1::vector)"
	}

	args := []any{vecLit, limit}
	where := ""
	if f := filterJSON(filter); f != "{}" {
		where = "WHERE payload @> $3::jsonb"
		args = append(args, f)
	}
	query := fmt.Sprintf("SELECT id, %s AS score, payload FROM memory_vectors %s ORDER BY vec %s $1::vector LIMIT $2", scoreExpr, where, op)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Result, 0, limit)
	for rows.Next() {
		var r Result
		var payload []byte
		if err := rows.Scan(&r.ID, &r.Score, &payload); err != nil {
			return nil, err
		}
		var md map[string]any
		_ = json.Unmarshal(payload, &md)
		r.Payload = md
		out = append(out, r)
	}
	return out, rows.Err()
}

func filterJSON(f Filter) string {
	m := map[string]any{}
	if f.Project != "" {
		m["project"] = f.Project
	}
	if f.Type != "" {
		m["type"] = f.Type
	}
	if f.Source != "" {
		m["source"] = f.Source
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (p *pgVectorStore) NativeSparse() bool { return false }

func (p *pgVectorStore) Dimension() int { return p.dimensions }

func (p *pgVectorStore) Close() error { return nil }

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

func parseVectorLiteral(s string) []float32 {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float64
		fmt.Sscanf(strings.TrimSpace(p), "%g", &f)
		out = append(out, float32(f))
	}
	return out
}

var _ Store = (*pgVectorStore)(nil)
