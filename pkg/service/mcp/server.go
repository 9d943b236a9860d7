package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/tool/diffs"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DiffFinder is satisfied by *diffs.Finder
type DiffFinder interface {
	Find(ctx context.Context, issue string) (*diffs.Result, error)
}

// Diagnoser is satisfied by *diagnose.Agent
type Diagnoser interface {
	Run(ctx context.Context, issue string) (*model.Diagnosis, error)
}

// Server exposes the diff finder and the diagnosis agent as MCP tools.
type Server struct {
	server *mcp.Server
}

type issueParams struct {
	IssueDescription string `json:"issue_description" jsonschema:"Description of the production issue, symptoms and error messages"`
}

// NewServer registers find_relevant_diffs and diagnose. Either dependency may be nil, in which
// case the tool is not exposed.
func NewServer(version string, finder DiffFinder, diagnoser Diagnoser) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "culprit",
		Version: version,
	}, nil)

	if finder != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "find_relevant_diffs",
			Description: "Find recently merged pull requests whose diffs are most likely related to an issue, and explain the match",
		}, findRelevantDiffs(finder))
	}

	if diagnoser != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "diagnose",
			Description: "Run a full diagnosis of an issue against recent changes and return the root cause analysis",
		}, diagnose(diagnoser))
	}

	return &Server{server: server}
}

// Run serves on stdin/stdout until the client disconnects or ctx is done.
func (x *Server) Run(ctx context.Context) error {
	if err := x.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// Connect serves a single session on the given transport.
func (x *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := x.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp session")
	}
	return session, nil
}

func findRelevantDiffs(finder DiffFinder) mcp.ToolHandlerFor[issueParams, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, params issueParams) (*mcp.CallToolResult, any, error) {
		if params.IssueDescription == "" {
			return errorResult("issue_description is required"), nil, nil
		}

		result, err := finder.Find(ctx, params.IssueDescription)
		if err != nil {
			logging.From(ctx).Error("find_relevant_diffs failed", "error", err)
			return errorResult(err.Error()), nil, nil
		}

		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to marshal result")
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(result.Verdict)},
				&mcp.TextContent{Text: string(raw)},
			},
		}, nil, nil
	}
}

func diagnose(diagnoser Diagnoser) mcp.ToolHandlerFor[issueParams, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, params issueParams) (*mcp.CallToolResult, any, error) {
		if params.IssueDescription == "" {
			return errorResult("issue_description is required"), nil, nil
		}

		diag, err := diagnoser.Run(ctx, params.IssueDescription)
		if err != nil {
			logging.From(ctx).Error("diagnose failed", "error", err)
			return errorResult(err.Error()), nil, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: diag.Text},
				&mcp.TextContent{Text: fmt.Sprintf("session: %s (%s, %d iterations)", diag.SessionID, diag.Status, diag.Iterations)},
			},
		}, nil, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
