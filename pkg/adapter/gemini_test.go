package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func newTestGemini(t *testing.T) *adapter.GeminiClient {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	client, err := adapter.NewGemini(context.Background(), projectID, "us-central1")
	gt.NoError(t, err)
	return client
}

func TestGenerateContent(t *testing.T) {
	client := newTestGemini(t)
	ctx := context.Background()

	contents := []*genai.Content{
		genai.NewContentFromText("Hello, what is the capital of France?", genai.RoleUser),
	}

	resp, err := client.GenerateContent(ctx, contents, nil)
	gt.NoError(t, err)

	if resp == nil ||
		len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].Text == "" {
		t.Fatal("unexpected response")
	}

	t.Log("response:", resp.Candidates[0].Content.Parts[0].Text)
}

func TestEmbedContents(t *testing.T) {
	client := newTestGemini(t)
	ctx := context.Background()

	vectors, err := client.EmbedContents(ctx, []string{"first change", "second change"}, adapter.TaskRetrievalDocument, adapter.DefaultDimension)
	gt.NoError(t, err)
	gt.A(t, vectors).Length(2)
	gt.A(t, vectors[0]).Length(adapter.DefaultDimension)

	embedder := adapter.NewGeminiEmbedder(client, adapter.DefaultDimension)
	q, err := embedder.EmbedQuery(ctx, "payment API returns 500")
	gt.NoError(t, err)
	gt.A(t, q).Length(adapter.DefaultDimension)
}
