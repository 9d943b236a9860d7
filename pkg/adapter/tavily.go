package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const tavilyBaseURL = "https://api.tavily.com"

// WebSearch looks up public web pages for a query.
type WebSearch interface {
	Search(ctx context.Context, query string, maxResults int) ([]*model.WebResult, error)
}

type TavilyClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type TavilyOption func(*TavilyClient)

func WithTavilyBaseURL(baseURL string) TavilyOption {
	return func(x *TavilyClient) {
		x.baseURL = baseURL
	}
}

func NewTavily(apiKey string, opts ...TavilyOption) *TavilyClient {
	x := &TavilyClient{
		apiKey:  apiKey,
		baseURL: tavilyBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []*model.WebResult `json:"results"`
}

func (x *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]*model.WebResult, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+x.apiKey)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(model.ErrUpstream, "failed to send search request", goerr.V("cause", err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		sentinel := model.ErrUpstream
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			sentinel = model.ErrAuth
		}
		return nil, goerr.Wrap(sentinel, "web search API returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(raw)))
	}

	var result tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode search response")
	}

	if len(result.Results) > maxResults {
		result.Results = result.Results[:maxResults]
	}
	return result.Results, nil
}
