package judge

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/judge.md
var judgePromptRaw string

var judgePromptTmpl = template.Must(template.New("judge").Parse(judgePromptRaw))

// NoCandidateVerdict is returned without consulting the model when there is nothing to judge.
const NoCandidateVerdict model.Verdict = "No recently merged pull request matched the issue, so no change could be identified as the cause."

// Judge picks the candidate most relevant to an issue and explains it.
type Judge interface {
	Judge(ctx context.Context, query string, candidates []*model.Candidate) (model.Verdict, error)
}

type geminiJudge struct {
	gemini adapter.Gemini
}

func New(gemini adapter.Gemini) Judge {
	return &geminiJudge{gemini: gemini}
}

func (x *geminiJudge) Judge(ctx context.Context, query string, candidates []*model.Candidate) (model.Verdict, error) {
	if len(candidates) == 0 {
		return NoCandidateVerdict, nil
	}

	prompt, err := buildPrompt(query, candidates)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := x.gemini.GenerateContent(ctx, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return "", goerr.Wrap(err, "failed to judge candidates", goerr.V("candidates", len(candidates)))
	}

	text := responseText(resp)
	if text == "" {
		return "", goerr.New("empty response from model")
	}
	return model.Verdict(text), nil
}

func buildPrompt(query string, candidates []*model.Candidate) (string, error) {
	var buf bytes.Buffer
	if err := judgePromptTmpl.Execute(&buf, map[string]any{
		"Issue":      query,
		"Candidates": candidates,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute judge prompt template")
	}
	return buf.String(), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var texts []string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				texts = append(texts, part.Text)
			}
		}
	}
	return strings.Join(texts, "\n")
}
