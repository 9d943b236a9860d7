package mcp_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/service/mcp"
	"github.com/m-mizutani/culprit/pkg/tool/diffs"
	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type mockFinder struct {
	find func(ctx context.Context, issue string) (*diffs.Result, error)
}

func (m *mockFinder) Find(ctx context.Context, issue string) (*diffs.Result, error) {
	return m.find(ctx, issue)
}

type mockDiagnoser struct {
	run func(ctx context.Context, issue string) (*model.Diagnosis, error)
}

func (m *mockDiagnoser) Run(ctx context.Context, issue string) (*model.Diagnosis, error) {
	return m.run(ctx, issue)
}

func connect(t *testing.T, server *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport)
	gt.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return session
}

func textOf(t *testing.T, content mcpsdk.Content) string {
	t.Helper()
	text, ok := content.(*mcpsdk.TextContent)
	gt.True(t, ok)
	return text.Text
}

func TestServerListsTools(t *testing.T) {
	finder := &mockFinder{}
	diagnoser := &mockDiagnoser{}
	session := connect(t, mcp.NewServer("test", finder, diagnoser))

	tools, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, tools.Tools).Length(2)

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	gt.True(t, names["find_relevant_diffs"])
	gt.True(t, names["diagnose"])
}

func TestServerWithoutDiagnoser(t *testing.T) {
	session := connect(t, mcp.NewServer("test", &mockFinder{}, nil))

	tools, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, tools.Tools).Length(1)
	gt.Equal(t, tools.Tools[0].Name, "find_relevant_diffs")
}

func TestServerFindRelevantDiffs(t *testing.T) {
	finder := &mockFinder{
		find: func(ctx context.Context, issue string) (*diffs.Result, error) {
			gt.Equal(t, issue, "login fails with 500")
			return &diffs.Result{
				Verdict: "#102 renamed the session cookie",
				Candidates: []*model.SearchResult{
					{ID: 102, Score: 0.91, Metadata: model.ChangeMetadata{Title: "Rename cookie"}},
				},
			}, nil
		},
	}
	session := connect(t, mcp.NewServer("test", finder, nil))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "find_relevant_diffs",
		Arguments: map[string]any{"issue_description": "login fails with 500"},
	})
	gt.NoError(t, err)
	gt.False(t, result.IsError)
	gt.A(t, result.Content).Length(2)
	gt.Equal(t, textOf(t, result.Content[0]), "#102 renamed the session cookie")
	gt.S(t, textOf(t, result.Content[1])).Contains("Rename cookie")
}

func TestServerDiagnoseError(t *testing.T) {
	diagnoser := &mockDiagnoser{
		run: func(ctx context.Context, issue string) (*model.Diagnosis, error) {
			return nil, errors.New("model unavailable")
		},
	}
	session := connect(t, mcp.NewServer("test", nil, diagnoser))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "diagnose",
		Arguments: map[string]any{"issue_description": "queue stuck"},
	})
	gt.NoError(t, err)
	gt.True(t, result.IsError)
	gt.S(t, textOf(t, result.Content[0])).Contains("model unavailable")
}

func TestServerDiagnose(t *testing.T) {
	diagnoser := &mockDiagnoser{
		run: func(ctx context.Context, issue string) (*model.Diagnosis, error) {
			return &model.Diagnosis{
				SessionID:  "s-1",
				Text:       "PR #7 dropped the index",
				Status:     model.SessionStatusConcluded,
				Iterations: 2,
			}, nil
		},
	}
	session := connect(t, mcp.NewServer("test", nil, diagnoser))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "diagnose",
		Arguments: map[string]any{"issue_description": "slow queries"},
	})
	gt.NoError(t, err)
	gt.False(t, result.IsError)
	gt.Equal(t, textOf(t, result.Content[0]), "PR #7 dropped the index")
	gt.S(t, textOf(t, result.Content[1])).Contains("s-1")
}
