package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/repository"
	"github.com/m-mizutani/gt"
)

func setupSQLite(t *testing.T) *repository.SQLite {
	repo, err := repository.NewSQLite(filepath.Join(t.TempDir(), "nested", "culprit.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLite(t *testing.T) {
	testRepository(t, setupSQLite(t))
}

func TestSQLiteOverwrite(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	session := &model.Session{
		ID:        model.NewSessionID(),
		Issue:     "500 on /api/login",
		Status:    model.SessionStatusRunning,
		CreatedAt: created,
		UpdatedAt: created,
	}
	gt.NoError(t, repo.PutSession(ctx, session))

	session.Status = model.SessionStatusConcluded
	session.Iterations = 3
	session.UpdatedAt = created.Add(time.Minute)
	gt.NoError(t, repo.PutSession(ctx, session))

	got, err := repo.GetSession(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Status, model.SessionStatusConcluded)
	gt.Equal(t, got.Iterations, 3)
	gt.True(t, got.CreatedAt.Equal(created))
	gt.True(t, got.UpdatedAt.Equal(created.Add(time.Minute)))

	all, err := repo.ListSessions(ctx, 0, 10)
	gt.NoError(t, err)
	gt.A(t, all).Length(1)
}

func TestSQLiteInMemory(t *testing.T) {
	repo, err := repository.NewSQLite(":memory:")
	gt.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}
