package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentmemory/internal/apierr"
	"agentmemory/internal/embedding"
	"agentmemory/internal/store/fulltext"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
)

const (
	labelMemory = "Memory"
	relInProject = "IN_PROJECT"
	relTagged    = "TAGGED"
)

// Clock abstracts time for testability (lifecycle sweeps advance a fake
// clock in tests).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Validator applies the quality gate at write time.
// Implemented by internal/lifecycle and injected here to avoid a circular
// import between the two packages.
type Validator func(Record) error

// Store is the subset of persistence a Manager needs, aggregated for
// convenient construction.
type Store struct {
	Vector   vector.Store
	Graph    graph.Store // nil disables graph features
	Fulltext *fulltext.Index
}

// Manager implements the Memory Record Manager
type Manager struct {
	store     Store
	embedder  embedding.Backend
	validate  Validator
	clock     Clock
	log       zerolog.Logger
	composite bool
	weights   CompositeWeights

	locks *idLocks

	pendingMu sync.Mutex
	pending   map[string]Record // ids whose graph mirror is pending reconciliation
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c Clock) Option               { return func(m *Manager) { m.clock = c } }
func WithLogger(l zerolog.Logger) Option      { return func(m *Manager) { m.log = l } }
func WithValidator(v Validator) Option        { return func(m *Manager) { m.validate = v } }
func WithComposite(enabled bool) Option       { return func(m *Manager) { m.composite = enabled } }
func WithCompositeWeights(w CompositeWeights) Option {
	return func(m *Manager) { m.weights = w }
}

// New constructs a Manager. store.Graph may be nil to disable graph
// features entirely; store.Fulltext may be nil to disable the in-process
// lexical ranking signal.
func New(store Store, embedder embedding.Backend, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		embedder: embedder,
		clock:    systemClock{},
		log:      zerolog.Nop(),
		validate: func(Record) error { return nil },
		composite: true,
		weights:   DefaultCompositeWeights,
		locks:     newIDLocks(),
		pending:   make(map[string]Record),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Upsert validates, embeds, and writes a new record. It generates an id
// if the caller hasn't supplied one.
func (m *Manager) Upsert(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Type == "" {
		return Record{}, apierr.Validation("type is required")
	}
	if !ValidTypes[r.Type] {
		return Record{}, apierr.Validation("unknown type %q", r.Type)
	}
	now := m.clock.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Relations = dedupeRelations(r.Relations)

	if err := m.validate(r); err != nil {
		return Record{}, err
	}

	var result Record
	var outerErr error
	m.locks.withLock(r.ID, func() {
		result, outerErr = m.writeRecord(ctx, r)
	})
	return result, outerErr
}

func (m *Manager) writeRecord(ctx context.Context, r Record) (Record, error) {
	vecs, err := ComputeEmbedding(ctx, m.embedder, r, m.composite, m.weights)
	if err != nil {
		return Record{}, apierr.DependencyUnavailable(err, "compute embedding for %s", r.ID)
	}

	point := vector.Point{
		ID:      r.ID,
		Dense:   vecs.Dense,
		Payload: recordPayload(r),
	}
	if vecs.Sparse != nil {
		point.Sparse = &vector.SparseVector{Indices: vecs.Sparse.Indices, Values: vecs.Sparse.Values}
	}

	// Vector write happens first; if it fails, nothing else is attempted.
	if err := m.store.Vector.Upsert(ctx, []vector.Point{point}); err != nil {
		return Record{}, apierr.DependencyUnavailable(err, "vector upsert for %s", r.ID)
	}

	if m.store.Fulltext != nil {
		if err := m.store.Fulltext.Index(ctx, r.ID, EnrichedText(r)); err != nil {
			m.log.Error().Err(err).Str("id", r.ID).Msg("fulltext index failed, continuing")
		}
	}

	if m.store.Graph == nil {
		return r, nil
	}

	if err := m.mirrorToGraph(ctx, r); err != nil {
		m.log.Error().Err(err).Str("id", r.ID).Msg("graph mirror failed, queuing for reconciliation")
		r.GraphPending = true
		m.pendingMu.Lock()
		m.pending[r.ID] = r
		m.pendingMu.Unlock()
		// The invariant "node exists iff record exists" is only
		// eventually satisfied; the caller still sees success.
		return r, nil
	}
	return r, nil
}

func (m *Manager) mirrorToGraph(ctx context.Context, r Record) error {
	if err := m.store.Graph.UpsertNode(ctx, r.ID, []string{labelMemory}, graphNodeProps(r)); err != nil {
		return fmt.Errorf("upsert memory node: %w", err)
	}
	if r.Project != "" {
		if err := m.store.Graph.UpsertNode(ctx, "project:"+r.Project, []string{"Project"}, map[string]any{"name": r.Project}); err != nil {
			return fmt.Errorf("upsert project node: %w", err)
		}
		if err := m.store.Graph.UpsertEdge(ctx, r.ID, relInProject, "project:"+r.Project, nil); err != nil {
			return fmt.Errorf("upsert in_project edge: %w", err)
		}
	}
	for _, tag := range r.Tags {
		tagID := "tag:" + tag
		if err := m.store.Graph.UpsertNode(ctx, tagID, []string{"Tag"}, map[string]any{"name": tag}); err != nil {
			return fmt.Errorf("upsert tag node: %w", err)
		}
		if err := m.store.Graph.UpsertEdge(ctx, r.ID, relTagged, tagID, nil); err != nil {
			return fmt.Errorf("upsert tagged edge: %w", err)
		}
	}
	for _, rel := range r.Relations {
		if rel.TargetID == r.ID {
			continue // self-loops rejected
		}
		if _, ok, err := m.store.Graph.GetNode(ctx, rel.TargetID); err != nil {
			return fmt.Errorf("check relation target %s: %w", rel.TargetID, err)
		} else if !ok {
			// Dangling edges are permitted only transiently; skip here
			// and let the reconciliation sweep repair it later.
			continue
		}
		if err := m.store.Graph.UpsertEdge(ctx, r.ID, rel.Type, rel.TargetID, nil); err != nil {
			return fmt.Errorf("upsert relation edge: %w", err)
		}
	}
	return nil
}

func recordPayload(r Record) map[string]any {
	return map[string]any{
		"type":             string(r.Type),
		"content":          r.Content,
		"context":          r.Context,
		"error_message":    r.ErrorMessage,
		"solution":         r.Solution,
		"project":          r.Project,
		"tags":             r.Tags,
		"created_at":       r.CreatedAt.Format(time.RFC3339),
		"updated_at":       r.UpdatedAt.Format(time.RFC3339),
		"pinned":           r.Pinned,
		"resolved":         r.Resolved,
		"access_count":     r.AccessCount,
		"usefulness_score": r.UsefulnessScore,
		"source":           r.Source,
		"content_hash":     r.ContentHash,
		"relations":        marshalRelations(r.Relations),
	}
}

func graphNodeProps(r Record) map[string]any {
	return map[string]any{
		"type":            string(r.Type),
		"content_preview": r.ContentPreview(),
		"project":         r.Project,
		"tags":            r.Tags,
		"created_at":      r.CreatedAt.Format(time.RFC3339),
	}
}

// Patch applies metadata-only mutations (tags, pinned, resolved,
// usefulness, access_count, relations). Content mutation is not
// supported here; it is expressed by the caller as delete+insert.
type Patch struct {
	Tags            *[]string
	Pinned          *bool
	Resolved        *bool
	UsefulnessScore *float64
	AccessCountDelta int
	AddRelations    []Relation
}

func (m *Manager) PatchRecord(ctx context.Context, id string, p Patch, fetch func(ctx context.Context, id string) (Record, error)) (Record, error) {
	var result Record
	var outerErr error
	m.locks.withLock(id, func() {
		r, err := fetch(ctx, id)
		if err != nil {
			outerErr = err
			return
		}
		if p.Tags != nil {
			r.Tags = *p.Tags
		}
		if p.Pinned != nil {
			r.Pinned = *p.Pinned
		}
		if p.Resolved != nil {
			r.Resolved = *p.Resolved
		}
		if p.UsefulnessScore != nil {
			v := *p.UsefulnessScore
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			r.UsefulnessScore = v
		}
		if p.AccessCountDelta != 0 {
			r.AccessCount += p.AccessCountDelta
			if r.AccessCount < 0 {
				r.AccessCount = 0
			}
		}
		if len(p.AddRelations) > 0 {
			r.Relations = dedupeRelations(append(r.Relations, p.AddRelations...))
		}
		r.UpdatedAt = m.clock.Now()
		result, outerErr = m.writeRecord(ctx, r)
	})
	return result, outerErr
}

// Delete removes a record's vector point, fulltext entry, and graph node.
func (m *Manager) Delete(ctx context.Context, id string) error {
	var outerErr error
	m.locks.withLock(id, func() {
		if err := m.store.Vector.Delete(ctx, []string{id}); err != nil {
			outerErr = apierr.DependencyUnavailable(err, "vector delete for %s", id)
			return
		}
		if m.store.Fulltext != nil {
			_ = m.store.Fulltext.Remove(ctx, id)
		}
		if m.store.Graph != nil {
			if err := m.store.Graph.DeleteNode(ctx, id); err != nil {
				outerErr = apierr.DependencyUnavailable(err, "graph delete for %s", id)
				return
			}
		}
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
	})
	return outerErr
}

// PendingReconciliation returns records whose graph mirror is still
// pending, for the reconciliation sweep.
func (m *Manager) PendingReconciliation() []Record {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	out := make([]Record, 0, len(m.pending))
	for _, r := range m.pending {
		out = append(out, r)
	}
	return out
}

// Reconcile retries the graph mirror for every pending record, removing
// it from the pending set on success.
func (m *Manager) Reconcile(ctx context.Context) error {
	if m.store.Graph == nil {
		return nil
	}
	for _, r := range m.PendingReconciliation() {
		if err := m.mirrorToGraph(ctx, r); err != nil {
			m.log.Error().Err(err).Str("id", r.ID).Msg("reconciliation retry failed")
			continue
		}
		m.pendingMu.Lock()
		delete(m.pending, r.ID)
		m.pendingMu.Unlock()
	}
	return nil
}

// IncrementAccess is the best-effort, non-blocking access-count bump
// performed by the retriever on returned ids. Failures here never
// affect result correctness; callers should not check the returned
// error on the hot path.
func (m *Manager) IncrementAccess(ctx context.Context, id string, fetch func(ctx context.Context, id string) (Record, error)) error {
	_, err := m.PatchRecord(ctx, id, Patch{AccessCountDelta: 1}, fetch)
	return err
}
