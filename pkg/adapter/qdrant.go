package adapter

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VectorIndex is a named collection of change vectors with cosine similarity search.
type VectorIndex interface {
	ListIndexes(ctx context.Context) ([]string, error)
	// Dimension returns the vector size the index was created with.
	Dimension(ctx context.Context, name string) (int, error)
	CreateIndex(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, name string, vectors []*model.EmbeddingVector) error
	Query(ctx context.Context, input QueryInput) ([]*model.SearchResult, error)
}

type QueryInput struct {
	Index  string
	Vector []float32
	TopK   int
	// UpdatedSince restricts results to changes whose updated_at is at or after this time.
	// Zero means no restriction.
	UpdatedSince time.Time
}

const (
	payloadTitle     = "title"
	payloadState     = "state"
	payloadUpdatedAt = "updated_at"
	payloadURL       = "url"
)

type QdrantClient struct {
	client      *qdrant.Client
	maxRetries  int
	baseBackoff time.Duration
}

// NewQdrant connects to the gRPC endpoint of Qdrant. rawURL is like "http://localhost:6334";
// https enables TLS.
func NewQdrant(rawURL, apiKey string) (*QdrantClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, goerr.Wrap(model.ErrConfig, "invalid Qdrant URL", goerr.V("url", rawURL), goerr.V("cause", err.Error()))
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, goerr.Wrap(model.ErrConfig, "invalid Qdrant port", goerr.V("url", rawURL))
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Qdrant client", goerr.V("url", rawURL))
	}

	return &QdrantClient{
		client:      client,
		maxRetries:  defaultMaxRetries,
		baseBackoff: 500 * time.Millisecond,
	}, nil
}

func (x *QdrantClient) Close() error {
	return x.client.Close()
}

func (x *QdrantClient) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string
	err := x.retry(ctx, "list collections", func() error {
		var err error
		names, err = x.client.ListCollections(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (x *QdrantClient) Dimension(ctx context.Context, name string) (int, error) {
	var info *qdrant.CollectionInfo
	err := x.retry(ctx, "get collection info", func() error {
		var err error
		info, err = x.client.GetCollectionInfo(ctx, name)
		return err
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to describe index", goerr.V("index", name))
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil || params.GetSize() == 0 {
		return 0, goerr.New("index has no single vector configuration", goerr.V("index", name))
	}
	return int(params.GetSize()), nil
}

func (x *QdrantClient) CreateIndex(ctx context.Context, name string, dimension int) error {
	logging.From(ctx).Info("creating index", "index", name, "dimension", dimension)

	return x.retry(ctx, "create collection", func() error {
		return x.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

func (x *QdrantClient) Upsert(ctx context.Context, name string, vectors []*model.EmbeddingVector) error {
	if len(vectors) == 0 {
		return nil
	}

	wait := true
	req := &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         buildPoints(vectors),
	}

	err := x.retry(ctx, "upsert points", func() error {
		_, err := x.client.Upsert(ctx, req)
		return err
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert vectors", goerr.V("index", name), goerr.V("count", len(vectors)))
	}

	logging.From(ctx).Debug("upserted vectors", "index", name, "count", len(vectors))
	return nil
}

func (x *QdrantClient) Query(ctx context.Context, input QueryInput) ([]*model.SearchResult, error) {
	if input.TopK <= 0 {
		return nil, goerr.New("topK must be greater than 0", goerr.V("top_k", input.TopK))
	}

	req := buildQuery(input)

	var points []*qdrant.ScoredPoint
	err := x.retry(ctx, "query points", func() error {
		var err error
		points, err = x.client.Query(ctx, req)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query index", goerr.V("index", input.Index))
	}

	results := make([]*model.SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, &model.SearchResult{
			ID:       model.ChangeID(p.GetId().GetNum()),
			Score:    p.GetScore(),
			Metadata: payloadToMetadata(p.GetPayload()),
		})
	}
	return results, nil
}

func buildPoints(vectors []*model.EmbeddingVector) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(v.ID)),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadTitle:     v.Metadata.Title,
				payloadState:     string(v.Metadata.State),
				payloadUpdatedAt: v.Metadata.UpdatedAt,
				payloadURL:       v.Metadata.URL,
			}),
		})
	}
	return points
}

func buildQuery(input QueryInput) *qdrant.QueryPoints {
	limit := uint64(input.TopK)
	req := &qdrant.QueryPoints{
		CollectionName: input.Index,
		Query:          qdrant.NewQuery(input.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if !input.UpdatedSince.IsZero() {
		gte := float64(input.UpdatedSince.Unix())
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewRange(payloadUpdatedAt, &qdrant.Range{Gte: &gte}),
			},
		}
	}
	return req
}

func payloadToMetadata(payload map[string]*qdrant.Value) model.ChangeMetadata {
	md := model.ChangeMetadata{
		Title: payload[payloadTitle].GetStringValue(),
		State: model.ChangeState(payload[payloadState].GetStringValue()),
		URL:   payload[payloadURL].GetStringValue(),
	}

	switch v := payload[payloadUpdatedAt].GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		md.UpdatedAt = v.IntegerValue
	case *qdrant.Value_DoubleValue:
		md.UpdatedAt = int64(v.DoubleValue)
	}
	return md
}

// retry runs fn again while Qdrant reports a transient gRPC status.
func (x *QdrantClient) retry(ctx context.Context, op string, fn func() error) error {
	operation := func() error {
		err := fn()
		if err != nil && !isTransientGRPC(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logging.From(ctx).Debug("retrying qdrant call", "op", op, "wait", wait, "error", err)
	}

	schedule := newExponentialBackOff(x.baseBackoff, 32*x.baseBackoff)
	policy := backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(max(x.maxRetries, 0))), ctx)

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return goerr.Wrap(err, "qdrant call canceled", goerr.V("op", op))
	}
	return goerr.Wrap(model.ErrUpstream, "qdrant "+op+" failed",
		goerr.V("code", status.Code(err).String()), goerr.V("cause", err.Error()))
}

func isTransientGRPC(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
