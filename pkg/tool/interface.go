package tool

import (
	"context"
	"slices"

	"google.golang.org/genai"
)

// Name identifies a tool. The set is closed: only the names below can be registered.
type Name string

const (
	NameFindRelevantDiffs Name = "find_relevant_diffs"
	NameWebSearch         Name = "web_search"
)

var knownNames = []Name{NameFindRelevantDiffs, NameWebSearch}

func (n Name) Valid() bool {
	return slices.Contains(knownNames, n)
}

// Tool represents an external tool that can be called by the LLM
type Tool interface {
	Name() Name

	// Declaration returns the function declaration for Gemini function calling
	Declaration() *genai.FunctionDeclaration

	// Execute runs the tool with the arguments of a function call and returns the response body
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string
}
