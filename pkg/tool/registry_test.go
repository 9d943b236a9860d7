package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/tool"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type echoInput struct {
	Query string `json:"query" jsonschema:"text to echo"`
}

func newEchoTool(t *testing.T, name tool.Name) tool.Tool {
	t.Helper()
	echo, err := tool.Typed(name, "echo the query", "Use echo when asked.",
		func(ctx context.Context, in echoInput) (any, error) {
			if in.Query == "fail" {
				return nil, errors.New("boom")
			}
			return "echo: " + in.Query, nil
		})
	gt.NoError(t, err)
	return echo
}

func TestTypedDeclaration(t *testing.T) {
	echo := newEchoTool(t, tool.NameWebSearch)

	decl := echo.Declaration()
	gt.Equal(t, decl.Name, "web_search")
	gt.Equal(t, decl.Parameters.Type, genai.TypeObject)
	gt.Map(t, decl.Parameters.Properties).HasKey("query")
	gt.Equal(t, decl.Parameters.Properties["query"].Type, genai.TypeString)
	gt.Equal(t, decl.Parameters.Properties["query"].Description, "text to echo")
	gt.A(t, decl.Parameters.Required).Length(1)
}

func TestTypedRejectsUnknownName(t *testing.T) {
	_, err := tool.Typed(tool.Name("rm_rf"), "", "", func(ctx context.Context, in echoInput) (any, error) {
		return nil, nil
	})
	gt.Error(t, err)
}

func TestRegistryExecute(t *testing.T) {
	registry, err := tool.New(newEchoTool(t, tool.NameWebSearch), nil)
	gt.NoError(t, err)
	gt.Equal(t, registry.Names(), []tool.Name{tool.NameWebSearch})

	resp, err := registry.Execute(context.Background(), genai.FunctionCall{
		ID:   "call-1",
		Name: "web_search",
		Args: map[string]any{"query": "hello"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.ID, "call-1")
	gt.Equal(t, resp.Name, "web_search")
	gt.Equal(t, resp.Response["result"], any("echo: hello"))
}

func TestRegistryUnknownTool(t *testing.T) {
	registry, err := tool.New(newEchoTool(t, tool.NameWebSearch))
	gt.NoError(t, err)

	_, err = registry.Execute(context.Background(), genai.FunctionCall{Name: "delete_repo"})
	gt.True(t, errors.Is(err, model.ErrUnknownTool))
}

func TestRegistryToolError(t *testing.T) {
	registry, err := tool.New(newEchoTool(t, tool.NameWebSearch))
	gt.NoError(t, err)

	_, err = registry.Execute(context.Background(), genai.FunctionCall{
		Name: "web_search",
		Args: map[string]any{"query": "fail"},
	})
	gt.Error(t, err)
	gt.False(t, errors.Is(err, model.ErrUnknownTool))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := tool.New(newEchoTool(t, tool.NameWebSearch), newEchoTool(t, tool.NameWebSearch))
	gt.Error(t, err)
}

func TestRegistrySpecsAndPrompts(t *testing.T) {
	registry, err := tool.New(newEchoTool(t, tool.NameFindRelevantDiffs), newEchoTool(t, tool.NameWebSearch))
	gt.NoError(t, err)

	specs := registry.Specs()
	gt.A(t, specs).Length(1)
	gt.A(t, specs[0].FunctionDeclarations).Length(2)
	gt.Equal(t, specs[0].FunctionDeclarations[0].Name, "find_relevant_diffs")

	gt.S(t, registry.Prompts(context.Background())).Contains("Use echo when asked.")
}
