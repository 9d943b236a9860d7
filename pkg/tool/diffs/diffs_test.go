package diffs_test

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/tool/diffs"
	"github.com/m-mizutani/culprit/pkg/usecase/change"
	"github.com/m-mizutani/culprit/pkg/usecase/index"
	"github.com/m-mizutani/culprit/pkg/usecase/judge"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

// memoryIndex is an in-memory VectorIndex with cosine scoring and the updated_at filter.
type memoryIndex struct {
	dims    map[string]int
	vectors map[string]map[model.ChangeID]*model.EmbeddingVector
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{
		dims:    map[string]int{},
		vectors: map[string]map[model.ChangeID]*model.EmbeddingVector{},
	}
}

func (m *memoryIndex) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string
	for name := range m.dims {
		names = append(names, name)
	}
	return names, nil
}

func (m *memoryIndex) Dimension(ctx context.Context, name string) (int, error) {
	return m.dims[name], nil
}

func (m *memoryIndex) CreateIndex(ctx context.Context, name string, dimension int) error {
	m.dims[name] = dimension
	m.vectors[name] = map[model.ChangeID]*model.EmbeddingVector{}
	return nil
}

func (m *memoryIndex) Upsert(ctx context.Context, name string, vectors []*model.EmbeddingVector) error {
	for _, v := range vectors {
		m.vectors[name][v.ID] = v
	}
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, input adapter.QueryInput) ([]*model.SearchResult, error) {
	var results []*model.SearchResult
	for _, v := range m.vectors[input.Index] {
		if !input.UpdatedSince.IsZero() && v.Metadata.UpdatedAt < input.UpdatedSince.Unix() {
			continue
		}
		results = append(results, &model.SearchResult{ID: v.ID, Score: cosine(input.Vector, v.Values), Metadata: v.Metadata})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > input.TopK {
		results = results[:input.TopK]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	return float32(dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-9))
}

// wordEmbedder maps texts onto a tiny bag-of-words space.
type wordEmbedder struct{}

var vocabulary = []string{"checkout", "timeout", "readme", "logging"}

func (wordEmbedder) Dimension() int { return len(vocabulary) }

func (e wordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = e.EmbedQuery(ctx, text)
	}
	return out, nil
}

func (wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(strings.ToLower(text), w)) + 0.01
	}
	return v, nil
}

type mockGemini struct {
	prompts []string
}

var candidateHeader = regexp.MustCompile(`### #(\d+) `)

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	prompt := contents[0].Parts[0].Text
	m.prompts = append(m.prompts, prompt)

	var ids []string
	for _, match := range candidateHeader.FindAllStringSubmatch(prompt, -1) {
		ids = append(ids, match[1])
	}
	text := "Most relevant: PR #" + strings.Join(ids, ", #")
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}, nil
}

func (m *mockGemini) EmbedContents(ctx context.Context, texts []string, taskType string, dimension int) ([][]float32, error) {
	return nil, nil
}

// Changes 101 and 103 were updated long ago and 102 recently; only 102 may reach the judge.
func TestFindRelevantDiffsEndToEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	var (
		mu        sync.Mutex
		requested []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		fmt.Fprintf(w, "diff --git a/checkout.go b/checkout.go\n--- a/checkout.go\n+++ b/checkout.go\n@@ -1,1 +1,1 @@\n-timeout := 30\n+timeout := 1\n")
	}))
	defer srv.Close()

	gh, err := adapter.NewGitHub("token", adapter.WithGitHubBaseURL(srv.URL))
	gt.NoError(t, err)

	idx := newMemoryIndex()
	indexer, err := index.NewIndexer(wordEmbedder{}, idx)
	gt.NoError(t, err)

	records := []*model.ChangeRecord{
		{ID: 101, Title: "checkout timeout tweak", State: model.ChangeStateMerged, UpdatedAt: now.Add(-48 * time.Hour), URL: "https://github.com/acme/api/pull/101"},
		{ID: 102, Title: "checkout timeout change", State: model.ChangeStateMerged, UpdatedAt: now.Add(-2 * time.Hour), URL: "https://github.com/acme/api/pull/102"},
		{ID: 103, Title: "readme logging", State: model.ChangeStateMerged, UpdatedAt: now.Add(-30 * time.Hour), URL: "https://github.com/acme/api/pull/103"},
	}
	vectors, err := indexer.Embed(ctx, records)
	gt.NoError(t, err)
	gt.NoError(t, indexer.Upsert(ctx, vectors, "rootly"))

	gemini := &mockGemini{}
	finder := diffs.NewFinder(
		index.NewRetriever(wordEmbedder{}, idx),
		change.NewDiffFetcher(gh),
		judge.New(gemini),
		diffs.Config{Owner: "acme", Repo: "api", Index: "rootly"},
	)

	result, err := finder.Find(ctx, "checkout requests fail with timeout")
	gt.NoError(t, err)

	gt.Equal(t, requested, []string{"/repos/acme/api/pulls/102"})
	gt.A(t, result.Candidates).Length(1)
	gt.Equal(t, result.Candidates[0].ID, model.ChangeID(102))
	gt.S(t, string(result.Verdict)).Contains("#102")
	gt.S(t, string(result.Verdict)).NotContains("#101")

	gt.A(t, gemini.prompts).Length(1)
	gt.S(t, gemini.prompts[0]).Contains("+timeout := 1")
}

type stubSearcher struct {
	hits []*model.SearchResult
}

func (s *stubSearcher) Search(ctx context.Context, query, indexName string, topK int) ([]*model.SearchResult, error) {
	return s.hits, nil
}

type stubDiffs struct {
	called bool
}

func (s *stubDiffs) GetDiffs(ctx context.Context, owner, repo string, ids []model.ChangeID) (map[model.ChangeID]*model.DiffRecord, error) {
	s.called = true
	out := map[model.ChangeID]*model.DiffRecord{}
	for _, id := range ids {
		out[id] = &model.DiffRecord{ID: id, Text: "diff"}
	}
	return out, nil
}

func TestFindWithoutCandidates(t *testing.T) {
	gemini := &mockGemini{}
	d := &stubDiffs{}
	finder := diffs.NewFinder(&stubSearcher{}, d, judge.New(gemini), diffs.Config{Owner: "acme", Repo: "api", Index: "rootly"})

	result, err := finder.Find(context.Background(), "anything")
	gt.NoError(t, err)
	gt.Equal(t, result.Verdict, judge.NoCandidateVerdict)
	gt.A(t, gemini.prompts).Length(0)
}

func TestToolExecute(t *testing.T) {
	gemini := &mockGemini{}
	finder := diffs.NewFinder(
		&stubSearcher{hits: []*model.SearchResult{{ID: 7}}},
		&stubDiffs{},
		judge.New(gemini),
		diffs.Config{Owner: "acme", Repo: "api", Index: "rootly"},
	)

	tl, err := diffs.New(finder)
	gt.NoError(t, err)
	gt.Equal(t, tl.Declaration().Name, "find_relevant_diffs")
	gt.True(t, slices.Contains(tl.Declaration().Parameters.Required, "issue_description"))

	resp, err := tl.Execute(context.Background(), map[string]any{"issue_description": "login fails"})
	gt.NoError(t, err)
	gt.S(t, resp["result"].(string)).Contains("#7")
	gt.S(t, gemini.prompts[0]).Contains("https://github.com/acme/api/pull/7")

	_, err = tl.Execute(context.Background(), map[string]any{})
	gt.Error(t, err)
}
