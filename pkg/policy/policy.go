// Package policy evaluates user supplied Rego modules against collected changes before they
// are indexed. Modules declare `package ingest` and may set `exclude` (bool) and `reason`
// (string).
package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const ingestQuery = "data.ingest"

type Engine struct {
	ingest *rego.PreparedEvalQuery
}

// printHook forwards Rego print() output to the logger
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(pctx print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message, "location", pctx.Location)
	return nil
}

// New loads every *.rego file in policyDir. An empty policyDir or a directory without
// modules yields an engine that admits everything.
func New(ctx context.Context, policyDir string) (*Engine, error) {
	if policyDir == "" {
		return &Engine{}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		logging.From(ctx).Warn("no policy files found", "dir", policyDir)
		return &Engine{}, nil
	}

	options := []func(*rego.Rego){
		rego.Query(ingestQuery),
		rego.EnablePrintStatements(true),
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare query", goerr.V("query", ingestQuery))
	}

	return &Engine{ingest: &prepared}, nil
}

// Result is the decision for one change.
type Result struct {
	Exclude bool   `json:"exclude"`
	Reason  string `json:"reason"`
}

// Evaluate runs the ingest policy on rec. Without a policy every change is admitted.
func (e *Engine) Evaluate(ctx context.Context, rec *model.ChangeRecord) (*Result, error) {
	if e == nil || e.ingest == nil {
		return &Result{}, nil
	}

	input, err := toInput(rec)
	if err != nil {
		return nil, err
	}

	rs, err := e.ingest.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate ingest policy", goerr.V("id", rec.ID))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Result{}, nil
	}

	raw, err := json.Marshal(rs[0].Expressions[0].Value)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal policy result")
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, goerr.Wrap(err, "unexpected policy result", goerr.V("result", string(raw)))
	}
	return &result, nil
}

// Filter drops the records excluded by the policy, keeping the input order.
func (e *Engine) Filter(ctx context.Context, records []*model.ChangeRecord) ([]*model.ChangeRecord, error) {
	kept := make([]*model.ChangeRecord, 0, len(records))
	for _, rec := range records {
		result, err := e.Evaluate(ctx, rec)
		if err != nil {
			return nil, err
		}
		if result.Exclude {
			logging.From(ctx).Info("change excluded by policy", "id", rec.ID, "reason", result.Reason)
			continue
		}
		kept = append(kept, rec)
	}
	return kept, nil
}

func toInput(rec *model.ChangeRecord) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal change record")
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to convert change record")
	}
	input["updated_at_unix"] = rec.UpdatedAt.Unix()
	return input, nil
}
