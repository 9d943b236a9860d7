package websearch

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
)

// MaxResults is the number of hits returned to the model per search.
const MaxResults = 4

type input struct {
	Query string `json:"query" jsonschema:"web search query"`
}

// New returns the web_search tool, or nil when client is nil so that the registry skips it.
func New(client adapter.WebSearch) (tool.Tool, error) {
	if client == nil {
		return nil, nil
	}

	return tool.Typed(tool.NameWebSearch,
		"Search the web. Returns up to 4 results with title, URL and an excerpt.",
		"If absolutely necessary, for example to understand an unfamiliar error message or library behavior, you can use web_search.",
		func(ctx context.Context, in input) (any, error) {
			if in.Query == "" {
				return nil, goerr.New("query is required")
			}
			results, err := client.Search(ctx, in.Query, MaxResults)
			if err != nil {
				return nil, goerr.Wrap(err, "web search failed", goerr.V("query", in.Query))
			}
			return results, nil
		})
}
