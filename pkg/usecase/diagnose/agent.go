package diagnose

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/tool"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

const (
	DefaultMaxIterations = 8
	DefaultTimeout       = 5 * time.Minute
)

const emptyTurnPrompt = "Your previous response was empty. Call a tool, or answer with your diagnosis."

// Agent runs a tool calling loop until the model answers without calling a tool.
type Agent struct {
	gemini        adapter.Gemini
	registry      *tool.Registry
	sessions      *SessionStore
	maxIterations int
	timeout       time.Duration
	now           func() time.Time
}

type Option func(*Agent)

func WithMaxIterations(n int) Option {
	return func(x *Agent) {
		x.maxIterations = n
	}
}

// WithTimeout bounds the whole run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(x *Agent) {
		x.timeout = d
	}
}

// WithSessionStore persists the session after every turn.
func WithSessionStore(store *SessionStore) Option {
	return func(x *Agent) {
		x.sessions = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(x *Agent) {
		x.now = now
	}
}

func New(gemini adapter.Gemini, registry *tool.Registry, opts ...Option) *Agent {
	x := &Agent{
		gemini:        gemini,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		timeout:       DefaultTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Run diagnoses one issue. Reaching the iteration cap is not an error: the diagnosis is
// returned with SessionStatusInconclusive.
func (x *Agent) Run(ctx context.Context, issue string) (*model.Diagnosis, error) {
	if strings.TrimSpace(issue) == "" {
		return nil, goerr.New("issue description is empty")
	}

	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	systemPrompt, err := x.buildSystemPrompt(ctx)
	if err != nil {
		return nil, err
	}

	now := x.now()
	session := &model.Session{
		ID:           model.NewSessionID(),
		Issue:        issue,
		SystemPrompt: systemPrompt,
		Status:       model.SessionStatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
		Contents: []*genai.Content{
			genai.NewContentFromText(issue, genai.RoleUser),
		},
	}
	logger := logging.From(ctx).With("session_id", session.ID)
	ctx = logging.With(ctx, logger)

	if err := x.persist(ctx, session); err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Tools: x.registry.Specs(),
	}

	for i := 0; i < x.maxIterations; i++ {
		session.Iterations = i + 1
		status := fmt.Sprintf("%s\n\n**Current Status**: iteration %d/%d", systemPrompt, i+1, x.maxIterations)
		config.SystemInstruction = genai.NewContentFromText(status, "")

		resp, err := x.gemini.GenerateContent(ctx, session.Contents, config)
		if err != nil {
			return nil, x.fail(ctx, session, goerr.Wrap(err, "failed to generate content", goerr.V("iteration", i+1)))
		}

		content := firstContent(resp)
		if content == nil {
			return nil, x.fail(ctx, session, goerr.New("model returned no content", goerr.V("iteration", i+1)))
		}

		calls := functionCalls(content)
		if len(calls) == 0 && contentText(content) == "" {
			// an empty turn is not an answer; ask again within the iteration budget
			logger.Warn("model returned an empty turn", "iteration", i+1, "finish_reason", finishReason(resp))
			session.Contents = append(session.Contents, genai.NewContentFromText(emptyTurnPrompt, genai.RoleUser))
			if err := x.persist(ctx, session); err != nil {
				return nil, err
			}
			continue
		}
		session.Contents = append(session.Contents, content)

		if len(calls) == 0 {
			session.Status = model.SessionStatusConcluded
			if err := x.persist(ctx, session); err != nil {
				return nil, err
			}
			logger.Info("diagnosis concluded", "iterations", session.Iterations)
			return &model.Diagnosis{
				SessionID:  session.ID,
				Text:       contentText(content),
				Status:     model.SessionStatusConcluded,
				Iterations: session.Iterations,
			}, nil
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, fc := range calls {
			parts = append(parts, &genai.Part{FunctionResponse: x.execute(ctx, fc)})
		}
		session.Contents = append(session.Contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: parts,
		})

		if err := x.persist(ctx, session); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, x.fail(ctx, session, goerr.Wrap(ctx.Err(), "diagnosis interrupted", goerr.V("iteration", i+1)))
		}
	}

	session.Status = model.SessionStatusInconclusive
	if err := x.persist(ctx, session); err != nil {
		return nil, err
	}
	logger.Warn("diagnosis hit iteration limit", "max_iterations", x.maxIterations)

	return &model.Diagnosis{
		SessionID:  session.ID,
		Text:       fmt.Sprintf("diagnosis inconclusive: no answer after %d iterations", x.maxIterations),
		Status:     model.SessionStatusInconclusive,
		Iterations: session.Iterations,
	}, nil
}

// execute never fails: errors are reported to the model as the function response.
func (x *Agent) execute(ctx context.Context, fc *genai.FunctionCall) *genai.FunctionResponse {
	logger := logging.From(ctx)
	logger.Info("calling tool", "name", fc.Name, "args", fc.Args)

	resp, err := x.registry.Execute(ctx, *fc)
	if err == nil {
		return resp
	}

	msg := err.Error()
	if errors.Is(err, model.ErrUnknownTool) {
		names := make([]string, 0)
		for _, n := range x.registry.Names() {
			names = append(names, string(n))
		}
		msg = fmt.Sprintf("bad tool name %q, retry with one of: %s", fc.Name, strings.Join(names, ", "))
		logger.Warn("model called unknown tool", "name", fc.Name)
	} else {
		logger.Warn("tool execution failed", "name", fc.Name, "error", err)
	}

	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: map[string]any{"error": msg},
	}
}

func (x *Agent) buildSystemPrompt(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, map[string]any{
		"ToolPrompts":   x.registry.Prompts(ctx),
		"MaxIterations": x.maxIterations,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute system prompt template")
	}
	return buf.String(), nil
}

func (x *Agent) persist(ctx context.Context, session *model.Session) error {
	if x.sessions == nil {
		return nil
	}
	session.UpdatedAt = x.now()
	// the run context may already be done when recording a failure
	if err := x.sessions.Save(context.WithoutCancel(ctx), session); err != nil {
		return goerr.Wrap(err, "failed to persist session", goerr.V("session_id", session.ID))
	}
	return nil
}

func (x *Agent) fail(ctx context.Context, session *model.Session, cause error) error {
	session.Status = model.SessionStatusFailed
	if err := x.persist(ctx, session); err != nil {
		logging.From(ctx).Error("failed to record failed session", "error", err)
	}
	return cause
}

func firstContent(resp *genai.GenerateContentResponse) *genai.Content {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			return candidate.Content
		}
	}
	return nil
}

func finishReason(resp *genai.GenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason != "" {
			return string(candidate.FinishReason)
		}
	}
	return ""
}

func functionCalls(content *genai.Content) []*genai.FunctionCall {
	var calls []*genai.FunctionCall
	for _, part := range content.Parts {
		if part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

func contentText(content *genai.Content) string {
	var texts []string
	for _, part := range content.Parts {
		if part.Text != "" && !part.Thought {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
