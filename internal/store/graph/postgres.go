package graph

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct{ pool *pgxpool.Pool }

// NewPostgres opens (and creates if needed) the nodes/edges tables backing
// a plain labelled property graph.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS nodes (
  id TEXT PRIMARY KEY,
  labels TEXT[] NOT NULL DEFAULT '{}',
  props JSONB NOT NULL DEFAULT '{}'::jsonb
)`); err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS edges (
  source TEXT NOT NULL,
  rel TEXT NOT NULL,
  target TEXT NOT NULL,
  props JSONB NOT NULL DEFAULT '{}'::jsonb,
  PRIMARY KEY (source, rel, target)
)`); err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS edges_src_rel ON edges(source, rel)`); err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS edges_dst_rel ON edges(target, rel)`); err != nil {
		return nil, err
	}
	return &postgresStore{pool: pool}, nil
}

func (g *postgresStore) UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO nodes(id, labels, props) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET labels = EXCLUDED.labels, props = EXCLUDED.props
`, id, labels, props)
	return err
}

func (g *postgresStore) DeleteNode(ctx context.Context, id string) error {
	if _, err := g.pool.Exec(ctx, `DELETE FROM edges WHERE source = $1 OR target = $1`, id); err != nil {
		return err
	}
	_, err := g.pool.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	return err
}

func (g *postgresStore) UpsertEdge(ctx context.Context, source, rel, target string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO edges(source, rel, target, props) VALUES ($1, $2, $3, $4)
ON CONFLICT (source, rel, target) DO UPDATE SET props = EXCLUDED.props
`, source, rel, target, props)
	return err
}

func (g *postgresStore) DeleteEdge(ctx context.Context, source, rel, target string) error {
	_, err := g.pool.Exec(ctx, `DELETE FROM edges WHERE source = $1 AND rel = $2 AND target = $3`, source, rel, target)
	return err
}

func (g *postgresStore) GetNode(ctx context.Context, id string) (Node, bool, error) {
	row := g.pool.QueryRow(ctx, `SELECT labels, props FROM nodes WHERE id = $1`, id)
	var labels []string
	var props map[string]any
	if err := row.Scan(&labels, &props); err != nil {
		if err.Error() == "no rows in result set" {
			return Node{}, false, nil
		}
		return Node{}, false, err
	}
	return Node{ID: id, Labels: labels, Props: props}, true, nil
}

func (g *postgresStore) Neighbors(ctx context.Context, id, rel string) ([]string, error) {
	rows, err := g.pool.Query(ctx, `SELECT target FROM edges WHERE source = $1 AND rel = $2 ORDER BY target`, id, rel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (g *postgresStore) OutgoingEdges(ctx context.Context, id string) ([]Edge, error) {
	rows, err := g.pool.Query(ctx, `SELECT rel, target, props FROM edges WHERE source = $1 ORDER BY rel, target`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		var props map[string]any
		if err := rows.Scan(&e.Rel, &e.Target, &props); err != nil {
			return nil, err
		}
		e.Source = id
		e.Props = props
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Store = (*postgresStore)(nil)
