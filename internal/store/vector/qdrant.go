package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the caller-supplied string id, since Qdrant point
// ids must be a UUID or an unsigned integer.
const payloadIDField = "_original_id"

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrant connects to a Qdrant deployment over its gRPC API (default port
// 6334) and ensures the target collection exists with the requested
// dimension and distance metric. An API key may be supplied via
// "?api_key=..." on dsn; TLS is enabled when the scheme is https.
func NewQdrant(dsn, collection string, dimensions int, metric string) (Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	qs := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := qs.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return qs, nil
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointUUID(id string) (uuidStr string, original string) {
	if _, err := uuid.Parse(id); err == nil {
		return id, ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), id
}

func (q *qdrantStore) Upsert(ctx context.Context, points []Point) error {
	pts := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		uuidStr, original := pointUUID(p.ID)
		payloadMap := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payloadMap[k] = v
		}
		if original != "" {
			payloadMap[payloadIDField] = original
		}
		vec := make([]float32, len(p.Dense))
		copy(vec, p.Dense)
		pts = append(pts, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payloadMap),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         pts,
	})
	return err
}

func (q *qdrantStore) Delete(ctx context.Context, ids []string) error {
	qids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		uuidStr, _ := pointUUID(id)
		qids = append(qids, qdrant.NewIDUUID(uuidStr))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qids...),
	})
	return err
}

func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.Project != "" {
		must = append(must, qdrant.NewMatch("project", f.Project))
	}
	if f.Type != "" {
		must = append(must, qdrant.NewMatch("type", f.Type))
	}
	for _, tag := range f.TagsContains {
		must = append(must, qdrant.NewMatchKeyword("tags", tag))
	}
	if f.Source != "" {
		must = append(must, qdrant.NewMatch("source", f.Source))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func (q *qdrantStore) Scroll(ctx context.Context, filter Filter, cursor string, limit int) ([]Point, string, error) {
	if limit <= 0 {
		limit = 100
	}
	req := &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         buildFilter(filter),
		Limit:          uintPtr(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if cursor != "" {
		uuidStr, _ := pointUUID(cursor)
		req.Offset = qdrant.NewIDUUID(uuidStr)
	}
	resp, err := q.client.Scroll(ctx, req)
	if err != nil {
		return nil, "", err
	}
	points := make([]Point, 0, len(resp))
	var next string
	for _, r := range resp {
		p, originalID := pointFromRetrieved(r)
		points = append(points, p)
		next = originalID
	}
	return points, next, nil
}

func pointFromRetrieved(r *qdrant.RetrievedPoint) (Point, string) {
	payload := map[string]any{}
	var originalID string
	for k, v := range r.GetPayload() {
		if k == payloadIDField {
			originalID = v.GetStringValue()
			continue
		}
		payload[k] = valueToAny(v)
	}
	id := originalID
	if id == "" {
		id = r.GetId().GetUuid()
	}
	var dense []float32
	if vecs := r.GetVectors(); vecs != nil {
		if d := vecs.GetVector(); d != nil {
			dense = d.GetData()
		}
	}
	return Point{ID: id, Dense: dense, Payload: payload}, id
}

func valueToAny(v *qdrant.Value) any {
	switch v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.GetStringValue()
	case *qdrant.Value_IntegerValue:
		return v.GetIntegerValue()
	case *qdrant.Value_DoubleValue:
		return v.GetDoubleValue()
	case *qdrant.Value_BoolValue:
		return v.GetBoolValue()
	case *qdrant.Value_ListValue:
		vals := v.GetListValue().GetValues()
		out := make([]any, 0, len(vals))
		for _, e := range vals {
			out = append(out, valueToAny(e))
		}
		return out
	default:
		return v.GetStringValue()
	}
}

func (q *qdrantStore) HybridSearch(ctx context.Context, dense []float32, sparse *SparseVector, filter Filter, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := make([]float32, len(dense))
	copy(vec, dense)
	l := uint64(limit)
	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &l,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(resp))
	for _, hit := range resp {
		payload := map[string]any{}
		var originalID string
		for k, v := range hit.GetPayload() {
			if k == payloadIDField {
				originalID = v.GetStringValue()
				continue
			}
			payload[k] = valueToAny(v)
		}
		id := originalID
		if id == "" {
			id = hit.GetId().GetUuid()
		}
		results = append(results, Result{ID: id, Score: hit.GetScore(), Payload: payload})
	}
	return results, nil
}

// NativeSparse reports that Qdrant is queried dense-only here; sparse
// ranking for this deployment is delegated to internal/store/fulltext.
func (q *qdrantStore) NativeSparse() bool { return false }

func (q *qdrantStore) Dimension() int { return q.dimension }

func (q *qdrantStore) Close() error { return q.client.Close() }

func uintPtr(v uint32) *uint32 { return &v }

var _ Store = (*qdrantStore)(nil)
