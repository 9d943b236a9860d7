package tool

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Handler is the implementation of a tool taking a decoded input. The returned value is
// reported to the model under "result".
type Handler[In any] func(ctx context.Context, input In) (any, error)

type typedTool[In any] struct {
	name        Name
	declaration *genai.FunctionDeclaration
	prompt      string
	handler     Handler[In]
}

// Typed builds a Tool whose parameter schema is derived from In. Field descriptions come from
// `jsonschema` struct tags.
func Typed[In any](name Name, description, prompt string, handler Handler[In]) (Tool, error) {
	if !name.Valid() {
		return nil, goerr.Wrap(errInvalidName, "cannot build tool", goerr.V("name", name))
	}

	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to infer input schema", goerr.V("name", name))
	}
	params, err := convertJSONSchemaToGenai(schema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to convert input schema", goerr.V("name", name))
	}

	return &typedTool[In]{
		name: name,
		declaration: &genai.FunctionDeclaration{
			Name:        string(name),
			Description: description,
			Parameters:  params,
		},
		prompt:  prompt,
		handler: handler,
	}, nil
}

func (x *typedTool[In]) Name() Name { return x.name }

func (x *typedTool[In]) Declaration() *genai.FunctionDeclaration { return x.declaration }

func (x *typedTool[In]) Prompt(ctx context.Context) string { return x.prompt }

func (x *typedTool[In]) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments", goerr.V("name", x.name))
	}

	var input In
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters", goerr.V("name", x.name), goerr.V("args", string(raw)))
	}

	result, err := x.handler(ctx, input)
	if err != nil {
		return nil, err
	}

	if s, ok := result.(string); ok {
		return map[string]any{"result": s}, nil
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal result", goerr.V("name", x.name))
	}
	return map[string]any{"result": string(out)}, nil
}
