package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/policy"
	"github.com/m-mizutani/gt"
)

func writePolicy(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "ingest.rego"), []byte(src), 0o600))
	return dir
}

func TestEngineWithoutPolicyAdmitsAll(t *testing.T) {
	ctx := context.Background()
	engine, err := policy.New(ctx, "")
	gt.NoError(t, err)

	records := []*model.ChangeRecord{{ID: 1}, {ID: 2}}
	kept, err := engine.Filter(ctx, records)
	gt.NoError(t, err)
	gt.A(t, kept).Length(2)
}

func TestEngineEmptyDirAdmitsAll(t *testing.T) {
	ctx := context.Background()
	engine, err := policy.New(ctx, t.TempDir())
	gt.NoError(t, err)

	result, err := engine.Evaluate(ctx, &model.ChangeRecord{ID: 1})
	gt.NoError(t, err)
	gt.False(t, result.Exclude)
}

func TestEngineExcludesByTitle(t *testing.T) {
	dir := writePolicy(t, `package ingest

exclude if {
	startswith(input.title, "chore")
}

reason := "housekeeping change" if {
	exclude
}
`)
	ctx := context.Background()
	engine, err := policy.New(ctx, dir)
	gt.NoError(t, err)

	result, err := engine.Evaluate(ctx, &model.ChangeRecord{ID: 7, Title: "chore: bump deps"})
	gt.NoError(t, err)
	gt.True(t, result.Exclude)
	gt.Equal(t, result.Reason, "housekeeping change")

	kept, err := engine.Filter(ctx, []*model.ChangeRecord{
		{ID: 7, Title: "chore: bump deps"},
		{ID: 8, Title: "fix: payment timeout"},
	})
	gt.NoError(t, err)
	gt.A(t, kept).Length(1)
	gt.Equal(t, kept[0].ID, model.ChangeID(8))
}

func TestEngineInvalidPolicy(t *testing.T) {
	dir := writePolicy(t, "package ingest\n\nexclude if {\n")
	_, err := policy.New(context.Background(), dir)
	gt.Error(t, err)
}
