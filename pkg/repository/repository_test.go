package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/repository"
	"github.com/m-mizutani/gt"
)

// testRepository runs the behavior every Repository implementation must share.
func testRepository(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		session := &model.Session{
			ID:         model.NewSessionID(),
			Issue:      "checkout returns 502 since this morning",
			Status:     model.SessionStatusConcluded,
			Iterations: 2,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		gt.NoError(t, repo.PutSession(ctx, session))

		got, err := repo.GetSession(ctx, session.ID)
		gt.NoError(t, err)
		gt.V(t, got).NotNil()
		gt.Equal(t, got.ID, session.ID)
		gt.Equal(t, got.Issue, session.Issue)
		gt.Equal(t, got.Status, session.Status)
		gt.Equal(t, got.Iterations, 2)
	})

	t.Run("get missing session", func(t *testing.T) {
		_, err := repo.GetSession(ctx, model.NewSessionID())
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("list newest first", func(t *testing.T) {
		now := time.Now()
		for i := range 3 {
			created := now.Add(time.Duration(i-3) * time.Hour)
			gt.NoError(t, repo.PutSession(ctx, &model.Session{
				ID:        model.NewSessionID(),
				Issue:     "list test",
				Status:    model.SessionStatusRunning,
				CreatedAt: created,
				UpdatedAt: created,
			}))
		}

		sessions, err := repo.ListSessions(ctx, 0, 10)
		gt.NoError(t, err)
		gt.A(t, sessions).Longer(2)
		for i := 0; i < len(sessions)-1; i++ {
			if sessions[i].CreatedAt.Before(sessions[i+1].CreatedAt) {
				t.Errorf("sessions not ordered: [%d] %v is before [%d] %v",
					i, sessions[i].CreatedAt, i+1, sessions[i+1].CreatedAt)
			}
		}
	})

	t.Run("list beyond end", func(t *testing.T) {
		sessions, err := repo.ListSessions(ctx, 10000, 10)
		gt.NoError(t, err)
		gt.A(t, sessions).Length(0)
	})
}
