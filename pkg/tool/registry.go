package tool

import (
	"context"
	"strings"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

var errInvalidName = goerr.New("invalid tool name")

// Registry manages available tools for the LLM
type Registry struct {
	tools map[Name]Tool
	order []Name
}

// New creates a new tool registry with the given tools. A nil tool is skipped so that optional
// tools can be passed unconditionally.
func New(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[Name]Tool),
	}

	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if !name.Valid() {
			return nil, goerr.Wrap(errInvalidName, "cannot register tool", goerr.V("name", name))
		}
		if _, exists := r.tools[name]; exists {
			return nil, goerr.New("tool registered twice", goerr.V("name", name))
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}

	return r, nil
}

// Names returns registered tool names in registration order
func (r *Registry) Names() []Name {
	return append([]Name(nil), r.order...)
}

// Specs returns all tool specifications for Gemini function calling
func (r *Registry) Specs() []*genai.Tool {
	if len(r.order) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, name := range r.order {
		if prompt := r.tools[name].Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Execute runs the tool with the given function call. An unregistered name yields
// model.ErrUnknownTool.
func (r *Registry) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	t, ok := r.tools[Name(fc.Name)]
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownTool, "tool not found", goerr.V("name", fc.Name))
	}

	resp, err := t.Execute(ctx, fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "tool execution failed", goerr.V("name", fc.Name))
	}

	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: resp,
	}, nil
}
