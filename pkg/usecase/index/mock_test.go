package index_test

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
)

type mockEmbedder struct {
	dimension      int
	embedDocuments func(ctx context.Context, texts []string) ([][]float32, error)
	embedQuery     func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embedDocuments(ctx, texts)
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.embedQuery(ctx, text)
}

func (m *mockEmbedder) Dimension() int { return m.dimension }

type mockIndex struct {
	names      []string
	dimension  int
	created    map[string]int
	upserted   map[string][]*model.EmbeddingVector
	lastQuery  adapter.QueryInput
	queryResult []*model.SearchResult
}

func newMockIndex() *mockIndex {
	return &mockIndex{
		created:  map[string]int{},
		upserted: map[string][]*model.EmbeddingVector{},
	}
}

func (m *mockIndex) ListIndexes(ctx context.Context) ([]string, error) {
	return m.names, nil
}

func (m *mockIndex) Dimension(ctx context.Context, name string) (int, error) {
	return m.dimension, nil
}

func (m *mockIndex) CreateIndex(ctx context.Context, name string, dimension int) error {
	m.created[name] = dimension
	m.names = append(m.names, name)
	m.dimension = dimension
	return nil
}

func (m *mockIndex) Upsert(ctx context.Context, name string, vectors []*model.EmbeddingVector) error {
	m.upserted[name] = append(m.upserted[name], vectors...)
	return nil
}

func (m *mockIndex) Query(ctx context.Context, input adapter.QueryInput) ([]*model.SearchResult, error) {
	m.lastQuery = input
	return m.queryResult, nil
}
